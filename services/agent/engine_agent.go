package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/datachat/appconfig"
)

// EngineClient talks to the managed agent-hosting service. A remote
// session is created lazily on the first message for each
// (user_id, session_id) pair and cached in the registry for the process
// lifetime.
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
	agentName  string
	registry   *sessionRegistry
}

type createSessionPayload struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type queryPayload struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// queryChunk is one element of the agent's response stream. The same
// shape arrives as a single payload when the agent answers in one shot.
type queryChunk struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

// NewEngineClient validates the agent identifiers and builds the HTTP
// client. Missing identifiers are a configuration error and abort
// startup; nothing else in this package is allowed to be fatal.
func NewEngineClient(cfg appconfig.Config) (*EngineClient, error) {
	baseURL := strings.TrimSuffix(cfg.AgentEngineURL, "/")
	if baseURL == "" {
		if cfg.ProjectID == "" || cfg.AgentName == "" {
			return nil, fmt.Errorf("agent engine not configured: GOOGLE_CLOUD_PROJECT and AGENT_NAME are required")
		}
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/%s", cfg.Location, cfg.AgentName)
	}
	slog.Info("Initializing agent engine client", "agent", cfg.AgentName, "url", baseURL)
	return &EngineClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		agentName:  cfg.AgentName,
		registry:   newSessionRegistry(),
	}, nil
}

// SendMessage forwards one message to the remote agent and assembles the
// streamed response. All failures are converted to an apology reply;
// partial output from a broken stream is discarded, never surfaced.
func (e *EngineClient) SendMessage(ctx context.Context, message, userID, sessionID string) Reply {
	key := registryKey(userID, sessionID)
	handle, err := e.registry.GetOrCreate(ctx, key, func(ctx context.Context) (string, error) {
		return e.createSession(ctx, userID)
	})
	if err != nil {
		slog.Error("Failed to create remote agent session", "userId", userID, "sessionId", sessionID, "error", err)
		return errorReply(userID, sessionID, err)
	}

	slog.Info("Querying agent", "userId", userID, "sessionId", sessionID)
	response, err := e.streamQuery(ctx, handle, message, userID)
	if err != nil {
		slog.Error("Agent query failed", "userId", userID, "sessionId", sessionID, "error", err)
		return errorReply(userID, sessionID, err)
	}
	if response == "" {
		response = emptyResponsePlaceholder
	}
	return Reply{
		Response: response,
		Metadata: map[string]any{
			"user_id":           userID,
			"session_id":        sessionID,
			"engine_session_id": handle,
		},
	}
}

// HealthCheck reports whether the client is wired to an agent resource.
func (e *EngineClient) HealthCheck() HealthStatus {
	if e.baseURL == "" {
		return HealthStatus{Status: "error", Message: "agent engine not initialized"}
	}
	return HealthStatus{Status: "ok", AgentResourceName: e.agentName}
}

func (e *EngineClient) createSession(ctx context.Context, userID string) (string, error) {
	body, err := json.Marshal(createSessionPayload{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach the agent service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("agent session creation returned status %d", resp.StatusCode)
	}

	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to parse session creation response: %w", err)
	}
	handle := created.ID
	if handle == "" {
		handle = created.Name
	}
	if handle == "" {
		return "", fmt.Errorf("agent service returned no session handle")
	}
	slog.Info("Created new remote agent session", "userId", userID, "handle", handle)
	return handle, nil
}

// streamQuery posts the message to the session-scoped endpoint and
// concatenates the text fragments in arrival order. The response may be
// a single JSON payload or newline-delimited chunks; both paths go
// through the same decoder.
func (e *EngineClient) streamQuery(ctx context.Context, handle, message, userID string) (string, error) {
	body, err := json.Marshal(queryPayload{Message: message, UserID: userID, SessionID: handle})
	if err != nil {
		return "", fmt.Errorf("failed to marshal query payload: %w", err)
	}
	url := fmt.Sprintf("%s/sessions/%s:streamQuery", e.baseURL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach the agent service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("agent query returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parts []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk queryChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("failed to parse agent response chunk: %w", err)
		}
		for _, p := range chunk.Content.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Whatever was concatenated so far is dropped with the error.
		return "", fmt.Errorf("agent response stream broke: %w", err)
	}
	return strings.Join(parts, ""), nil
}
