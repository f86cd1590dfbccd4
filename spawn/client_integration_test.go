package spawn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers pings and echoes chat messages back with an "echo: "
// prefix. kick closes every open server-side connection.
type echoServer struct {
	*httptest.Server

	mu      sync.Mutex
	conns   []*websocket.Conn
	agents  []string
	pings   int
	silence bool
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *echoServer) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.agents = append(s.agents, r.URL.Query().Get("agentId"))
	s.mu.Unlock()
	defer c.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		m, err := DecodeMessage(data)
		if err != nil {
			continue
		}

		var reply Message
		switch p := m.Payload.(type) {
		case PingPayload:
			s.mu.Lock()
			s.pings++
			quiet := s.silence
			s.mu.Unlock()
			if quiet {
				continue
			}
			reply = Message{Payload: PongPayload{}}
		case ChatPayload:
			reply = NewChatMessage("echo: "+p.Content, time.Now())
		default:
			continue
		}
		out, err := reply.MarshalJSON()
		if err != nil {
			return
		}
		if err := c.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

func (s *echoServer) kick() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server restart")
	}
}

func (s *echoServer) stats() (conns int, pings int, agents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents), s.pings, append([]string(nil), s.agents...)
}

func newLiveClient(t *testing.T, url string, mutate func(*Config)) (*Client, chan ConnectionState, chan string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.AgentID = "live-agent"
	cfg.BaseReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	states := make(chan ConnectionState, 64)
	chats := make(chan string, 64)
	c.OnStateChange(func(ev StateEvent) { states <- ev.NewState })
	c.OnChat(func(p ChatPayload, _ Message) { chats <- p.Content })
	return c, states, chats
}

func waitFor[T comparable](t *testing.T, ch <-chan T, want T) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestLiveEchoRoundTrip(t *testing.T) {
	srv := newEchoServer(t)
	c, states, chats := newLiveClient(t, srv.url(), nil)

	assert.False(t, c.SendChatMessage("queued before open"))
	c.Connect()
	waitFor(t, states, StateConnected)
	waitFor(t, chats, "echo: queued before open")

	assert.True(t, c.SendChatMessage("hello"))
	waitFor(t, chats, "echo: hello")

	_, _, agents := srv.stats()
	assert.Equal(t, []string{"live-agent"}, agents)
}

func TestLiveReconnectAfterServerClose(t *testing.T) {
	srv := newEchoServer(t)
	c, states, chats := newLiveClient(t, srv.url(), nil)

	c.Connect()
	waitFor(t, states, StateConnected)

	srv.kick()
	waitFor(t, states, StateReconnecting)
	waitFor(t, states, StateConnected)

	assert.True(t, c.SendChatMessage("after restart"))
	waitFor(t, chats, "echo: after restart")

	conns, _, _ := srv.stats()
	assert.Equal(t, 2, conns)
}

func TestLivePingKeepsConnectionOpen(t *testing.T) {
	srv := newEchoServer(t)
	c, states, _ := newLiveClient(t, srv.url(), func(cfg *Config) {
		cfg.PingInterval = 30 * time.Millisecond
		cfg.PongTimeout = 200 * time.Millisecond
	})

	c.Connect()
	waitFor(t, states, StateConnected)

	require.Eventually(t, func() bool {
		_, pings, _ := srv.stats()
		return pings >= 5
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())
}

func TestLivePongTimeoutReconnects(t *testing.T) {
	srv := newEchoServer(t)
	srv.silence = true
	c, states, _ := newLiveClient(t, srv.url(), func(cfg *Config) {
		cfg.PingInterval = 30 * time.Millisecond
		cfg.PongTimeout = 30 * time.Millisecond
	})

	c.Connect()
	waitFor(t, states, StateConnected)
	waitFor(t, states, StateReconnecting)
	waitFor(t, states, StateConnected)
}

func TestLiveDialFailureExhausts(t *testing.T) {
	srv := newEchoServer(t)
	url := srv.url()
	srv.Close()

	c, states, _ := newLiveClient(t, url, func(cfg *Config) {
		cfg.MaxReconnectAttempts = 2
	})
	c.Connect()
	waitFor(t, states, StateReconnecting)
	waitFor(t, states, StateDisconnected)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
}
