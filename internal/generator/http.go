package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/internal/policy"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
)

const maxErrorBody = 4 * 1024

// HTTPProvider posts the transcript to a JSON endpoint.
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type httpTurn struct {
	Role      string    `json:"role"`
	AuthorID  *string   `json:"author_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type httpRequest struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Channel        string         `json:"channel"`
	Metadata       map[string]any `json:"metadata"`
	Messages       []httpTurn     `json:"messages"`
}

type httpResponse struct {
	Status          Status            `json:"status"`
	Response        string            `json:"response"`
	Confidence      *float64          `json:"confidence"`
	Reason          *string           `json:"reason"`
	PolicyFlags     []string          `json:"policy_flags"`
	Handoff         bool              `json:"handoff"`
	ToolError       *policy.ToolError `json:"tool_error"`
	HandoffMetadata map[string]any    `json:"handoff_metadata"`
	Error           string            `json:"error"`
}

func NewHTTPProvider(cfg config.AgentConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("agent endpoint is required for the http generator")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Client:   &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProvider) Generate(ctx context.Context, conv *models.Conversation, transcript []models.Message) (Result, error) {
	body, err := json.Marshal(buildRequest(conv, transcript))
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "response generator unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("response generator: status %d: %s", resp.StatusCode, msg))
	}

	var decoded httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "response generator returned invalid json")
	}
	return decoded.result()
}

func buildRequest(conv *models.Conversation, transcript []models.Message) httpRequest {
	turns := make([]httpTurn, 0, len(transcript))
	for _, m := range transcript {
		turns = append(turns, httpTurn{
			Role:      string(m.SenderType),
			AuthorID:  m.AuthorID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return httpRequest{
		ConversationID: conv.ID,
		Channel:        conv.Channel,
		Metadata:       conv.Metadata,
		Messages:       turns,
	}
}

func (r httpResponse) result() (Result, error) {
	switch r.Status {
	case StatusSuccess, "":
		if strings.TrimSpace(r.Response) == "" {
			return Result{}, pkgerrors.New(pkgerrors.CodeDependency, "response generator returned an empty response")
		}
	case StatusFallback:
	case StatusFailure:
		msg := r.Error
		if msg == "" {
			msg = "response generator reported failure"
		}
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, msg)
	default:
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("response generator returned unknown status %q", r.Status))
	}

	status := r.Status
	if status == "" {
		status = StatusSuccess
	}
	flags := r.PolicyFlags
	if flags == nil {
		flags = []string{}
	}
	return Result{
		Status: status,
		Payload: policy.Payload{
			Response:         r.Response,
			Confidence:       r.Confidence,
			Reason:           r.Reason,
			PolicyFlags:      flags,
			HandoffMetadata:  r.HandoffMetadata,
			RequestedHandoff: r.Handoff,
			ToolError:        r.ToolError,
		},
	}, nil
}
