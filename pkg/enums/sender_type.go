package enums

import "fmt"

// SenderType identifies who authored a transcript message.
type SenderType string

const (
	SenderRequester SenderType = "requester"
	SenderAgent     SenderType = "agent"
	SenderHuman     SenderType = "human"
)

func (s SenderType) IsValid() bool {
	switch s {
	case SenderRequester, SenderAgent, SenderHuman:
		return true
	}
	return false
}

func ParseSenderType(value string) (SenderType, error) {
	s := SenderType(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid sender type %q", value)
	}
	return s, nil
}

// RequesterType classifies the party that opened a conversation.
type RequesterType string

const (
	RequesterCustomer RequesterType = "customer"
	RequesterVisitor  RequesterType = "visitor"
	RequesterAPI      RequesterType = "api"
)

func (r RequesterType) IsValid() bool {
	switch r {
	case RequesterCustomer, RequesterVisitor, RequesterAPI:
		return true
	}
	return false
}
