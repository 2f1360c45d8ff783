package instance

import "github.com/angelmondragon/handoffdesk-backend/pkg/env"

// GetID returns the process instance identifier used in logs.
func GetID() string {
	return env.First("local", "HANDOFFDESK_WORKER_ID", "DYNO")
}
