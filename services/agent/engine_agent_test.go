package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datachat/appconfig"
)

// fakeEngine is a minimal stand-in for the remote agent service. It
// speaks the two endpoints the client uses: session creation and
// streamQuery.
type fakeEngine struct {
	sessionsCreated atomic.Int32
	failSessions    bool
	queryStatus     int
	chunks          []string // newline-delimited raw response lines
}

func (f *fakeEngine) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/sessions":
			if f.failSessions {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			f.sessionsCreated.Add(1)
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.NotEmpty(t, payload["user_id"])
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "engine-session-1"})

		case strings.HasSuffix(r.URL.Path, ":streamQuery"):
			status := f.queryStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			for _, line := range f.chunks {
				_, _ = w.Write([]byte(line + "\n"))
			}

		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func newTestEngineClient(t *testing.T, f *fakeEngine) *EngineClient {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewEngineClient(appconfig.Config{
		AgentEngineURL: srv.URL,
		AgentName:      "test-agent",
	})
	require.NoError(t, err)
	return client
}

func chunkLine(t *testing.T, texts ...string) string {
	t.Helper()
	type part struct {
		Text string `json:"text"`
	}
	payload := map[string]any{"content": map[string]any{"parts": func() []part {
		ps := make([]part, 0, len(texts))
		for _, txt := range texts {
			ps = append(ps, part{Text: txt})
		}
		return ps
	}()}}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNewEngineClient_RequiresAgentIdentifiers(t *testing.T) {
	_, err := NewEngineClient(appconfig.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLOUD_PROJECT")
}

func TestNewEngineClient_DerivesURLFromProject(t *testing.T) {
	client, err := NewEngineClient(appconfig.Config{
		ProjectID: "my-project",
		Location:  "us-central1",
		AgentName: "projects/my-project/locations/us-central1/reasoningEngines/42",
	})
	require.NoError(t, err)
	assert.Contains(t, client.baseURL, "us-central1-aiplatform.googleapis.com")
	assert.Contains(t, client.baseURL, "reasoningEngines/42")
}

// =============================================================================
// SendMessage Tests
// =============================================================================

func TestSendMessage_ConcatenatesStreamedChunks(t *testing.T) {
	engine := &fakeEngine{}
	engine.chunks = []string{
		chunkLine(t, "The answer "),
		chunkLine(t, "is ", "forty-"),
		chunkLine(t, "two."),
	}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.False(t, reply.IsError())
	assert.Equal(t, "The answer is forty-two.", reply.Response)
	assert.Equal(t, "engine-session-1", reply.Metadata["engine_session_id"])
}

func TestSendMessage_SinglePayloadResponse(t *testing.T) {
	engine := &fakeEngine{chunks: []string{chunkLine(t, "complete answer")}}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.Equal(t, "complete answer", reply.Response)
}

func TestSendMessage_ReusesRemoteSession(t *testing.T) {
	engine := &fakeEngine{chunks: []string{chunkLine(t, "ok")}}
	client := newTestEngineClient(t, engine)

	client.SendMessage(context.Background(), "one", "alice", "s-1")
	client.SendMessage(context.Background(), "two", "alice", "s-1")

	assert.Equal(t, int32(1), engine.sessionsCreated.Load())

	// A different conversation gets its own remote session.
	client.SendMessage(context.Background(), "three", "alice", "s-2")
	assert.Equal(t, int32(2), engine.sessionsCreated.Load())
}

func TestSendMessage_SessionCreationFailureIsApology(t *testing.T) {
	engine := &fakeEngine{failSessions: true}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.True(t, reply.IsError())
	assert.True(t, strings.HasPrefix(reply.Response, "❌ I'm having trouble processing your request right now. Error:"))
	assert.Equal(t, "alice", reply.Metadata["user_id"])
	assert.Equal(t, "s-1", reply.Metadata["session_id"])

	// The failed session must not be cached.
	_, cached := client.registry.Lookup(registryKey("alice", "s-1"))
	assert.False(t, cached)
}

func TestSendMessage_QueryFailureIsApology(t *testing.T) {
	engine := &fakeEngine{queryStatus: http.StatusBadGateway}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.True(t, reply.IsError())
	assert.Contains(t, reply.Response, "502")
}

func TestSendMessage_MalformedChunkDiscardsPartials(t *testing.T) {
	engine := &fakeEngine{}
	engine.chunks = []string{
		chunkLine(t, "partial text that must never surface"),
		"{not json",
	}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.True(t, reply.IsError())
	assert.NotContains(t, reply.Response, "partial text")
}

func TestSendMessage_EmptyResponseGetsPlaceholder(t *testing.T) {
	engine := &fakeEngine{chunks: nil}
	client := newTestEngineClient(t, engine)

	reply := client.SendMessage(context.Background(), "question", "alice", "s-1")

	assert.False(t, reply.IsError())
	assert.Equal(t, emptyResponsePlaceholder, reply.Response)
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestEngineHealthCheck(t *testing.T) {
	engine := &fakeEngine{}
	client := newTestEngineClient(t, engine)

	status := client.HealthCheck()

	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test-agent", status.AgentResourceName)
}

// =============================================================================
// Backend Selection Tests
// =============================================================================

func TestNewClient_BackendSwitch(t *testing.T) {
	t.Run("unknown backend rejected", func(t *testing.T) {
		_, err := NewClient(appconfig.Config{AgentBackend: "carrier-pigeon"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("engine is the default", func(t *testing.T) {
		client, err := NewClient(appconfig.Config{AgentEngineURL: "http://localhost:1"})
		require.NoError(t, err)
		_, ok := client.(*EngineClient)
		assert.True(t, ok)
	})
}
