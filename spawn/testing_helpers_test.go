package spawn

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// manualClock fires timers only when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clk     *manualClock
	at      time.Time
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clk: c, at: c.now.Add(d), d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, running due timers in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

// Active returns the durations of armed timers, shortest first.
func (c *manualClock) Active() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var errPeerClosed = errors.New("peer closed")

// fakeTransport is an in-memory Transport.
type fakeTransport struct {
	inbound chan []byte
	written chan []byte
	stalled chan []byte
	closed  chan struct{}
	peer    chan struct{}

	mu         sync.Mutex
	frames     [][]byte
	closeCount int
	closeCode  websocket.StatusCode
	writeErr   error
	holdWrites bool

	closeOnce sync.Once
	peerOnce  sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 64),
		written: make(chan []byte, 256),
		stalled: make(chan []byte, 8),
		closed:  make(chan struct{}),
		peer:    make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, errors.New("use of closed transport")
	case <-f.peer:
		return nil, errPeerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(_ context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	if f.holdWrites {
		f.mu.Unlock()
		f.stalled <- data
		<-f.closed
		return errors.New("use of closed transport")
	}
	f.frames = append(f.frames, data)
	f.mu.Unlock()
	f.written <- data
	return nil
}

func (f *fakeTransport) Close(code websocket.StatusCode, _ string) error {
	f.mu.Lock()
	f.closeCount++
	f.closeCode = code
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// deliver pushes a frame as if the peer had sent it.
func (f *fakeTransport) deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.inbound <- data
}

func (f *fakeTransport) deliverRaw(data string) { f.inbound <- []byte(data) }

// hangUp simulates the peer closing the connection.
func (f *fakeTransport) hangUp() { f.peerOnce.Do(func() { close(f.peer) }) }

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// stallWrites makes every later Write block until the transport is closed.
func (f *fakeTransport) stallWrites() {
	f.mu.Lock()
	f.holdWrites = true
	f.mu.Unlock()
}

// waitStalled waits for a Write to block and returns its frame.
func (f *fakeTransport) waitStalled(t *testing.T) Message {
	t.Helper()
	select {
	case data := <-f.stalled:
		m, err := DecodeMessage(data)
		require.NoError(t, err, "frame %s", data)
		return m
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a blocked write")
		return Message{}
	}
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

func (f *fakeTransport) nextFrame(t *testing.T) Message {
	t.Helper()
	select {
	case data := <-f.written:
		m, err := DecodeMessage(data)
		require.NoError(t, err, "frame %s", data)
		return m
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a written frame")
		return Message{}
	}
}

func (f *fakeTransport) expectNoFrame(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.written:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(d):
	}
}

func (f *fakeTransport) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for transport close")
	}
}

// scriptedDialer hands out the next scripted outcome on every Dial.
// Once the script runs out every dial fails.
type scriptedDialer struct {
	mu      sync.Mutex
	script  []dialOutcome
	calls   int
	dialed  chan string
	blockCh chan struct{}
}

type dialOutcome struct {
	t   *fakeTransport
	err error
}

func newScriptedDialer(outcomes ...dialOutcome) *scriptedDialer {
	return &scriptedDialer{script: outcomes, dialed: make(chan string, 64)}
}

func (d *scriptedDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.calls++
	var out dialOutcome
	if len(d.script) > 0 {
		out = d.script[0]
		d.script = d.script[1:]
	} else {
		out = dialOutcome{err: errors.New("connection refused")}
	}
	block := d.blockCh
	d.mu.Unlock()

	d.dialed <- url
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if out.err != nil {
		return nil, out.err
	}
	return out.t, nil
}

func (d *scriptedDialer) push(outcomes ...dialOutcome) {
	d.mu.Lock()
	d.script = append(d.script, outcomes...)
	d.mu.Unlock()
}

func (d *scriptedDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptedDialer) expectDial(t *testing.T) string {
	t.Helper()
	select {
	case url := <-d.dialed:
		return url
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
		return ""
	}
}

func (d *scriptedDialer) expectNoDial(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case url := <-d.dialed:
		t.Fatalf("unexpected dial to %s", url)
	case <-time.After(wait):
	}
}

// recorder captures callbacks on channels.
type recorder struct {
	states     chan StateEvent
	messages   chan Message
	reconnects chan ReconnectEvent
}

func newRecorder() *recorder {
	return &recorder{
		states:     make(chan StateEvent, 64),
		messages:   make(chan Message, 64),
		reconnects: make(chan ReconnectEvent, 64),
	}
}

func (r *recorder) OnMessage(m Message)           { r.messages <- m }
func (r *recorder) OnStateChange(ev StateEvent)   { r.states <- ev }
func (r *recorder) OnReconnect(ev ReconnectEvent) { r.reconnects <- ev }

type harness struct {
	t      *testing.T
	client *Client
	clock  *manualClock
	dialer *scriptedDialer
	rec    *recorder
}

func newHarness(t *testing.T, dialer *scriptedDialer, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = "ws://agents.test/ws"
	cfg.AgentID = "agent-1"
	if mutate != nil {
		mutate(&cfg)
	}

	clk := newManualClock()
	c, err := NewClient(cfg, WithDialer(dialer), WithClock(clk))
	require.NoError(t, err)

	rec := newRecorder()
	c.SetListener(rec)
	c.OnReconnect(rec.OnReconnect)
	t.Cleanup(func() { _ = c.Close() })

	return &harness{t: t, client: c, clock: clk, dialer: dialer, rec: rec}
}

// expectState waits for the next state event and checks its target. It then
// takes the client lock once so the handler that emitted the event is done.
func (h *harness) expectState(want ConnectionState) StateEvent {
	h.t.Helper()
	select {
	case ev := <-h.rec.states:
		require.Equal(h.t, want, ev.NewState, "state event %+v", ev)
		_ = h.client.State()
		return ev
	case <-time.After(waitTimeout):
		h.t.Fatalf("timed out waiting for state %s", want)
		return StateEvent{}
	}
}

func (h *harness) expectNoState(wait time.Duration) {
	h.t.Helper()
	select {
	case ev := <-h.rec.states:
		h.t.Fatalf("unexpected state event %s -> %s", ev.OldState, ev.NewState)
	case <-time.After(wait):
	}
}

func (h *harness) expectReconnect() ReconnectEvent {
	h.t.Helper()
	select {
	case ev := <-h.rec.reconnects:
		return ev
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for reconnect event")
		return ReconnectEvent{}
	}
}

func (h *harness) expectMessage() Message {
	h.t.Helper()
	select {
	case m := <-h.rec.messages:
		return m
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func (h *harness) expectNoMessage(wait time.Duration) {
	h.t.Helper()
	select {
	case m := <-h.rec.messages:
		h.t.Fatalf("unexpected message %+v", m)
	case <-time.After(wait):
	}
}

// connect runs Connect and waits until the client reports connected.
func (h *harness) connect() {
	h.t.Helper()
	h.client.Connect()
	h.dialer.expectDial(h.t)
	h.expectState(StateConnecting)
	h.expectState(StateConnected)
}

func chat(content string) Message {
	return Message{Payload: ChatPayload{Content: content}}
}
