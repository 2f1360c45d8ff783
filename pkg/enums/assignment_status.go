package enums

import "fmt"

type AssignmentStatus string

const (
	AssignmentAssigned     AssignmentStatus = "assigned"
	AssignmentHumanWorking AssignmentStatus = "human_working"
	AssignmentReleased     AssignmentStatus = "released"
	AssignmentResolved     AssignmentStatus = "resolved"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentAssigned,
	AssignmentHumanWorking,
	AssignmentReleased,
	AssignmentResolved,
}

func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCurrent reports whether the assignment still holds custody of its conversation.
func (s AssignmentStatus) IsCurrent() bool {
	return s == AssignmentAssigned || s == AssignmentHumanWorking
}

func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
