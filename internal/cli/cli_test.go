package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spawnagents/spawn-sdk-go/spawn"
	"github.com/spawnagents/spawn-sdk-go/spawn/rest"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the callback goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, stdin io.Reader, args ...string) (*syncBuffer, error) {
	t.Helper()
	out := &syncBuffer{}
	root := NewRootCmd()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	root.SetArgs(append([]string{"--config", cfgPath, "--quiet"}, args...))
	root.SetOut(out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	return out, root.Execute()
}

func apiServer(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any
		switch r.URL.Path {
		case "/api/agents":
			body = []rest.Agent{
				{ID: "a1", Name: "Alpha", Ticker: "ALP", Status: rest.AgentStatusActive, CycleCount: 142, PriceChange24h: 4.2},
				{ID: "b2", Name: "Beta", Ticker: "BET", Status: rest.AgentStatusIdle, PriceChange24h: -1.5},
			}
		case "/api/agents/a1":
			body = rest.Agent{ID: "a1", Name: "Alpha", Ticker: "ALP", Description: "momentum trader"}
		case "/api/agents/a1/wallet":
			body = rest.WalletInfo{Address: "0x13F3", Balance: 0.25, Chain: "base"}
		case "/api/agents/a1/skills":
			body = []rest.Skill{{ID: "s1", Name: "Uniswap"}, {ID: "s2", Name: "Twitter"}}
		case "/api/agents/a1/heartbeats":
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			body = []rest.Heartbeat{{CycleNumber: 142, Action: "Holding position", Status: rest.HeartbeatNoAction, Timestamp: time.Now()}}
		case "/api/skills":
			body = []rest.Skill{{ID: "s1", Name: "Uniswap", Tools: []string{"swap", "quote"}}}
		default:
			w.WriteHeader(http.StatusNotFound)
			body = rest.ErrorResponse{Message: "not found", Code: "not_found"}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("SPAWN_API_URL", srv.URL)
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "spawnctl dev")

	out, err = run(t, nil, "version", "--json")
	require.NoError(t, err)
	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out.String()), &info))
	assert.Equal(t, "dev", info.Version)
}

func TestAgentsList(t *testing.T) {
	apiServer(t)
	out, err := run(t, nil, "agents", "--sort", "most-active")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Alpha")
	assert.Contains(t, text, "$ALP")
	assert.Contains(t, text, "+4.20%")
	assert.Contains(t, text, "-1.50%")
}

func TestAgentsJSON(t *testing.T) {
	apiServer(t)
	out, err := run(t, nil, "agents", "--json")
	require.NoError(t, err)

	var agents []rest.Agent
	require.NoError(t, json.Unmarshal([]byte(out.String()), &agents))
	assert.Len(t, agents, 2)
}

func TestAgentDetail(t *testing.T) {
	apiServer(t)
	out, err := run(t, nil, "agent", "a1")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Alpha ($ALP)")
	assert.Contains(t, text, "momentum trader")
	assert.Contains(t, text, "0x13F3")
	assert.Contains(t, text, "Skills: Uniswap, Twitter")
}

func TestAgentNotFound(t *testing.T) {
	apiServer(t)
	_, err := run(t, nil, "agent", "zzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent zzz not found")
}

func TestHeartbeats(t *testing.T) {
	apiServer(t)
	out, err := run(t, nil, "heartbeats", "a1", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "#142")
	assert.Contains(t, out.String(), "Holding position")
}

func TestSkills(t *testing.T) {
	apiServer(t)
	out, err := run(t, nil, "skills", "--category", "all")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "swap,quote")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawn", "config.yaml")

	root := NewRootCmd()
	out := &syncBuffer{}
	root.SetOut(out)
	root.SetArgs([]string{"--config", path, "--quiet", "config", "init"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "host: localhost:8787")
	assert.Contains(t, string(data), "ping_interval: 30s")

	root = NewRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--config", path, "--quiet", "config", "init"})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigShowMasksToken(t *testing.T) {
	t.Setenv("SPAWN_API_TOKEN", "super-secret")
	out, err := run(t, nil, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "super-secret")
	assert.Contains(t, out.String(), "# websocket endpoint: ws://localhost:8787/ws")
}

func echoAgent(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			m, err := spawn.DecodeMessage(data)
			if err != nil {
				continue
			}
			p, ok := m.Payload.(spawn.ChatPayload)
			if !ok {
				continue
			}
			reply, _ := json.Marshal(spawn.Message{Payload: spawn.ChatPayload{Content: "echo: " + p.Content}})
			if err := c.Write(r.Context(), websocket.MessageText, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestChatSession(t *testing.T) {
	for _, transport := range []string{"coder", "gorilla"} {
		t.Run(transport, func(t *testing.T) {
			url := echoAgent(t)
			inR, inW := io.Pipe()
			t.Cleanup(func() { _ = inW.Close() })
			out := &syncBuffer{}

			root := NewRootCmd()
			root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "--quiet",
				"chat", "agent-1", "--url", url, "--transport", transport})
			root.SetOut(out)
			root.SetIn(inR)

			var err error
			done := make(chan struct{})
			go func() {
				defer close(done)
				err = root.Execute()
			}()

			require.Eventually(t, func() bool {
				return strings.Contains(out.String(), "Connected to agent")
			}, 5*time.Second, 10*time.Millisecond)

			_, _ = io.WriteString(inW, "hello\n")
			require.Eventually(t, func() bool {
				return strings.Contains(out.String(), "agent> echo: hello")
			}, 5*time.Second, 10*time.Millisecond)

			_, _ = io.WriteString(inW, "/state\n")
			require.Eventually(t, func() bool {
				return strings.Contains(out.String(), "state: connected, queued: 0")
			}, 5*time.Second, 10*time.Millisecond)

			_, _ = io.WriteString(inW, "/quit\n")
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("chat did not exit on /quit")
			}
			assert.NoError(t, err)
		})
	}
}

func TestChatUnknownTransport(t *testing.T) {
	_, err := run(t, strings.NewReader(""), "chat", "agent-1", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
