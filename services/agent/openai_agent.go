package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the development agent backend. It keeps a per
// (user_id, session_id) message history in memory so multi-turn chats
// behave like a remote agent session, but nothing survives a restart.
type OpenAIClient struct {
	client *openai.Client
	model  string

	mu        sync.Mutex
	histories map[string][]openai.ChatCompletionMessage
}

func NewOpenAIClient(cfg appconfig.Config) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI agent backend", "model", model)
	return &OpenAIClient{
		client:    openai.NewClient(apiKey),
		model:     model,
		histories: make(map[string][]openai.ChatCompletionMessage),
	}, nil
}

func (o *OpenAIClient) SendMessage(ctx context.Context, message, userID, sessionID string) Reply {
	key := registryKey(userID, sessionID)

	o.mu.Lock()
	history := append([]openai.ChatCompletionMessage(nil), o.histories[key]...)
	o.mu.Unlock()

	messages := append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "userId", userID, "sessionId", sessionID, "error", err)
		return errorReply(userID, sessionID, err)
	}
	if len(resp.Choices) == 0 {
		return Reply{
			Response: emptyResponsePlaceholder,
			Metadata: map[string]any{"user_id": userID, "session_id": sessionID, "model": o.model},
		}
	}

	answer := resp.Choices[0].Message.Content

	// Record both sides of the exchange only after a successful call,
	// so a failed turn is retried from the same context.
	o.mu.Lock()
	o.histories[key] = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: answer,
	})
	o.mu.Unlock()

	if answer == "" {
		answer = emptyResponsePlaceholder
	}
	return Reply{
		Response: answer,
		Metadata: map[string]any{"user_id": userID, "session_id": sessionID, "model": o.model},
	}
}

func (o *OpenAIClient) HealthCheck() HealthStatus {
	if o.client == nil {
		return HealthStatus{Status: "error", Message: "OpenAI client not initialized"}
	}
	return HealthStatus{Status: "ok", AgentResourceName: o.model}
}
