package policy

import (
	"sort"
	"strings"

	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// matcher reports whether rule fires for p, plus any detail hits.
type matcher func(rule Rule, p Payload) (bool, []string)

var matchers = map[enums.TriggerType]matcher{
	enums.TriggerConfidenceBelowThreshold: matchConfidence,
	enums.TriggerPolicyFlagDetected:       matchFlags,
	enums.TriggerToolError:                matchToolError,
	enums.TriggerAgentRequestedHandoff:    matchRequested,
}

// Evaluate runs rules against p. Rules fire in descending priority, ties broken by
// rule id, and the first match decides.
func Evaluate(rules []Rule, p Payload) Decision {
	decision := Decision{
		Confidence:      p.Confidence,
		PolicyHits:      []string{},
		RequiredSkills:  []string{},
		HandoffMetadata: dbtypes.JSONMap(p.HandoffMetadata).Merge(),
		QueueMetadata:   map[string]any{},
	}

	for _, rule := range Ordered(rules) {
		match, ok := matchers[rule.TriggerType]
		if !ok {
			continue
		}
		hit, details := match(rule, p)
		if !hit {
			continue
		}
		decision.ShouldHandoff = true
		decision.Reason = rule.ReasonCode
		decision.PolicyHits = append([]string{string(rule.TriggerType)}, details...)
		decision.RequiredSkills = []string(dbtypes.StringList(rule.RequiredSkills).Normalized())
		decision.HandoffMetadata["policy_id"] = rule.PolicyID.String()
		decision.HandoffMetadata["rule_id"] = rule.ID.String()
		decision.QueueMetadata = map[string]any{
			"reason_code":     rule.ReasonCode,
			"policy_id":       rule.PolicyID.String(),
			"policy_name":     rule.PolicyName,
			"required_skills": decision.RequiredSkills,
		}
		return decision
	}
	return decision
}

// Ordered returns a copy of rules in evaluation order.
func Ordered(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func matchConfidence(rule Rule, p Payload) (bool, []string) {
	if p.Confidence == nil || rule.Threshold == nil {
		return false, nil
	}
	return *p.Confidence < *rule.Threshold, nil
}

func matchFlags(rule Rule, p Payload) (bool, []string) {
	wanted := make(map[string]struct{}, len(rule.Flags))
	for _, f := range rule.Flags {
		wanted[normalizeFlag(f)] = struct{}{}
	}
	var hits []string
	seen := map[string]struct{}{}
	for _, f := range p.PolicyFlags {
		flag := normalizeFlag(f)
		if _, ok := wanted[flag]; !ok {
			continue
		}
		if _, dup := seen[flag]; dup {
			continue
		}
		seen[flag] = struct{}{}
		hits = append(hits, "flag:"+flag)
	}
	return len(hits) > 0, hits
}

// matchToolError fires on any tool error when the rule has no retryable expectation.
func matchToolError(rule Rule, p Payload) (bool, []string) {
	if p.ToolError == nil {
		return false, nil
	}
	if rule.Retryable != nil && *rule.Retryable != p.ToolError.Retryable {
		return false, nil
	}
	return true, nil
}

func matchRequested(_ Rule, p Payload) (bool, []string) {
	return p.RequestedHandoff, nil
}

func normalizeFlag(f string) string {
	return strings.ToLower(strings.TrimSpace(f))
}
