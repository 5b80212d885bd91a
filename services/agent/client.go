package agent

import (
	"context"
	"fmt"

	"github.com/AleutianAI/datachat/appconfig"
)

// Reply is the result of one agent turn. Response is never empty: a
// failed call carries an apology string and Metadata["error"]=true, an
// empty remote answer carries a placeholder. Errors never cross this
// boundary.
type Reply struct {
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata"`
}

// IsError reports whether the reply represents a failed agent call.
func (r Reply) IsError() bool {
	v, ok := r.Metadata["error"].(bool)
	return ok && v
}

// HealthStatus is the result of a backend health probe.
type HealthStatus struct {
	Status            string `json:"status"`
	AgentResourceName string `json:"agent_resource_name,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Client defines the standard interface for any agent backend.
type Client interface {
	SendMessage(ctx context.Context, message, userID, sessionID string) Reply
	HealthCheck() HealthStatus
}

// NewClient selects the agent backend by configuration.
func NewClient(cfg appconfig.Config) (Client, error) {
	switch cfg.AgentBackend {
	case "engine", "":
		return NewEngineClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown AGENT_BACKEND %q", cfg.AgentBackend)
	}
}

// errorReply converts a failure into the user-facing apology contract.
func errorReply(userID, sessionID string, err error) Reply {
	return Reply{
		Response: fmt.Sprintf("❌ I'm having trouble processing your request right now. Error: %v", err),
		Metadata: map[string]any{
			"error":      true,
			"user_id":    userID,
			"session_id": sessionID,
		},
	}
}

// emptyResponsePlaceholder stands in when the agent returns no text at all.
const emptyResponsePlaceholder = "Agent returned an empty response."
