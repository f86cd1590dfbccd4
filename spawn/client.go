package spawn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Client keeps one resilient message channel open to an agent endpoint.
//
// All handlers (public calls, dial results, inbound frames, write failures
// and timer fires) run under mu, one at a time. Transport I/O never happens
// under mu: each connection has its own reader and writer goroutine.
// Callbacks are delivered in order on a separate goroutine, so they may call
// back into the Client.
type Client struct {
	cfg        Config
	policy     ReconnectPolicy
	logger     zerolog.Logger
	dialer     Dialer
	clock      Clock
	dispatcher Dispatcher
	notify     *notifier

	mu          sync.Mutex
	state       ConnectionState
	conn        *connection
	queue       *outboundQueue
	attempts    int
	intentional bool
	closed      bool

	dialing    bool
	dialSeq    uint64
	dialCancel context.CancelFunc

	reconnectTimer timerSlot
	pingTimer      timerSlot
	pongTimer      timerSlot
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and set URL and AgentID.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:    cfg,
		policy: cfg.policy(),
		logger: zerolog.Nop(),
		clock:  realClock{},
		state:  StateDisconnected,
		queue:  newOutboundQueue(cfg.QueueCapacity),
	}
	c.dialer = newWebsocketDialer(cfg)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = componentLogger(c.logger, cfg.AgentID)
	c.notify = newNotifier(c.logger)
	return c, nil
}

// OnMessage registers callback for every non-control inbound message.
func (c *Client) OnMessage(fn func(Message)) { c.dispatcher.SetOnMessage(fn) }

// OnChat registers callback for inbound chat messages.
func (c *Client) OnChat(fn func(ChatPayload, Message)) { c.dispatcher.SetOnChat(fn) }

// OnHeartbeat registers callback for agent cycle events.
func (c *Client) OnHeartbeat(fn func(HeartbeatPayload, Message)) { c.dispatcher.SetOnHeartbeat(fn) }

// OnSystem registers callback for system notices.
func (c *Client) OnSystem(fn func(SystemPayload, Message)) { c.dispatcher.SetOnSystem(fn) }

// OnStateChange registers callback fired once per distinct state transition.
func (c *Client) OnStateChange(fn func(StateEvent)) { c.dispatcher.SetOnStateChange(fn) }

// OnReconnect registers callback fired when an automatic attempt is scheduled.
func (c *Client) OnReconnect(fn func(ReconnectEvent)) { c.dispatcher.SetOnReconnect(fn) }

// SetListener registers l for messages and state changes.
func (c *Client) SetListener(l Listener) {
	if l == nil {
		return
	}
	c.OnMessage(l.OnMessage)
	c.OnStateChange(l.OnStateChange)
}

// Connect opens the transport in the background. It is a no-op while a
// transport is open or being opened. Called while a reconnect is pending it
// skips the remaining backoff. Called from disconnected it starts a fresh
// attempt budget.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.conn != nil || c.dialing {
		return
	}

	c.intentional = false
	c.reconnectTimer.stop()
	if c.state == StateDisconnected {
		c.attempts = 0
	}
	c.setState(StateConnecting, nil)
	c.startDial()
}

// Disconnect closes the transport and cancels every pending timer and dial.
// No automatic reconnect follows. It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Client) disconnectLocked() {
	c.intentional = true
	c.reconnectTimer.stop()
	c.cancelDial()
	if c.conn != nil {
		c.dropConn(websocket.StatusNormalClosure, "client disconnect")
	}
	c.setState(StateDisconnected, nil)
}

// Close disconnects and releases the callback goroutine. The client cannot
// be reconnected afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.disconnectLocked()
	c.closed = true
	c.mu.Unlock()

	c.notify.close()
	return nil
}

// Send transmits m if the transport is open and reports true. Otherwise m is
// queued for the next successful open and Send reports false.
func (c *Client) Send(m Message) bool {
	if m.Payload == nil {
		c.logger.Error().Msg("dropping message without payload")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Warn().Str("kind", string(m.Kind())).Msg("client closed, message dropped")
		return false
	}
	if c.conn != nil && c.state == StateConnected {
		if err := c.conn.enqueue(m); err != nil {
			c.logger.Error().Err(err).Str("kind", string(m.Kind())).Msg("message dropped")
			return false
		}
		return true
	}

	if c.queue.push(m) {
		c.logger.Warn().
			Err(NewError(ErrorQueueOverflow, "outbound queue full")).
			Uint64("dropped", c.queue.dropped).
			Int("capacity", c.queue.capacity).
			Msg("outbound queue full, oldest message dropped")
	}
	c.logger.Debug().Int("queued", c.queue.len()).Msg("message queued, connection not ready")
	return false
}

// SendChatMessage sends a chat message stamped with the current time.
func (c *Client) SendChatMessage(content string) bool {
	return c.Send(NewChatMessage(content, c.clock.Now()))
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the state is StateConnected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// QueueLen returns the number of messages waiting for a connection.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// Dropped returns how many queued messages were evicted because the queue
// was full.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.dropped
}

// --- handlers; everything below runs with mu held unless noted ---

func (c *Client) setState(s ConnectionState, cause error) {
	if c.state == s {
		return
	}
	ev := StateEvent{OldState: c.state, NewState: s, Error: cause}
	c.state = s
	c.notify.post(func() { c.dispatcher.DispatchState(ev) })
}

func (c *Client) startDial() {
	endpoint, err := c.cfg.endpoint()
	if err != nil {
		c.logger.Error().Err(err).Msg("connection error")
		c.scheduleReconnect(err)
		return
	}

	c.dialSeq++
	seq := c.dialSeq
	ctx, cancel := context.WithCancel(context.Background())
	c.dialing = true
	c.dialCancel = cancel

	c.logger.Debug().Str("url", endpoint).Int("attempt", c.attempts).Msg("dialing")
	go func() {
		t, err := c.dialer.Dial(ctx, endpoint)
		c.handleDialResult(seq, t, err)
	}()
}

func (c *Client) cancelDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.dialing = false
	c.dialSeq++
}

// handleDialResult is called without mu held.
func (c *Client) handleDialResult(seq uint64, t Transport, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.dialSeq || !c.dialing {
		if t != nil {
			go func() { _ = t.Close(websocket.StatusNormalClosure, "superseded") }()
		}
		return
	}
	c.dialCancel()
	c.dialCancel = nil
	c.dialing = false

	if err != nil {
		c.logger.Warn().Err(err).Msg("dial failed")
		c.scheduleReconnect(WrapError(ErrorConnection, "dial failed", err))
		return
	}
	c.handleOpen(t)
}

func (c *Client) handleOpen(t Transport) {
	cn := newConnection(t)
	c.conn = cn
	c.attempts = 0
	c.setState(StateConnected, nil)
	c.pingTimer.arm(c.clock, c.cfg.PingInterval, c.handlePingTimer)

	flushed := 0
	for _, m := range c.queue.drain() {
		if err := cn.enqueue(m); err != nil {
			c.logger.Error().Err(err).Str("kind", string(m.Kind())).Msg("queued message dropped")
			continue
		}
		flushed++
	}

	go c.readLoop(cn)
	go c.writeLoop(cn)
	c.logger.Info().Int("flushed", flushed).Msg("connected")
}

// handleFrame is called without mu held.
func (c *Client) handleFrame(cn *connection, data []byte) {
	m, err := DecodeMessage(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("message parse error, frame dropped")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != cn {
		return
	}

	switch m.Kind() {
	case KindPong:
		c.pongTimer.stop()
		return
	case KindPing:
		if err := cn.enqueue(Message{Payload: PongPayload{}}); err != nil {
			c.logger.Error().Err(err).Msg("pong dropped")
		}
		return
	}
	c.notify.post(func() { c.dispatcher.Dispatch(m) })
}

// handleTransportClosed is called without mu held.
func (c *Client) handleTransportClosed(cn *connection, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != cn {
		return
	}

	c.logger.Info().Err(err).Msg("connection closed")
	c.dropConn(websocket.StatusGoingAway, "transport closed")
	if c.intentional {
		c.setState(StateDisconnected, nil)
		return
	}
	c.scheduleReconnect(WrapError(ErrorDisconnected, "connection closed", err))
}

// dropConn stops liveness timers, returns undelivered messages to the queue
// and closes the transport. Undelivered covers the writer's current batch
// as well as frames it has not picked up yet.
func (c *Client) dropConn(code websocket.StatusCode, reason string) {
	c.pingTimer.stop()
	c.pongTimer.stop()

	cn := c.conn
	c.conn = nil
	requeue := make([]Message, 0, len(cn.inflight)+len(cn.pending))
	for _, frames := range [][]outFrame{cn.inflight, cn.pending} {
		for _, f := range frames {
			if !f.msg.Kind().control() {
				requeue = append(requeue, f.msg)
			}
		}
	}
	cn.inflight = nil
	cn.pending = nil
	c.queue.prepend(requeue)
	cn.close(code, reason)
}

func (c *Client) scheduleReconnect(cause error) {
	if !c.policy.ShouldRetry(c.attempts) {
		c.logger.Warn().Int("attempts", c.attempts).Msg("max reconnect attempts reached")
		c.setState(StateDisconnected, WrapError(ErrorReconnectExhausted, "max reconnect attempts reached", cause))
		return
	}

	c.setState(StateReconnecting, cause)
	c.attempts++
	delay := c.policy.Delay(c.attempts)
	c.reconnectTimer.arm(c.clock, delay, c.handleReconnectTimer)

	ev := ReconnectEvent{Attempt: c.attempts, Delay: delay, Cause: cause}
	c.notify.post(func() { c.dispatcher.DispatchReconnect(ev) })
	c.logger.Info().Dur("delay", delay).Int("attempt", c.attempts).Msg("reconnect scheduled")
}

// --- timer callbacks; called without mu held ---

func (c *Client) handleReconnectTimer(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reconnectTimer.fired(seq) {
		return
	}
	if c.intentional || c.closed || c.conn != nil || c.dialing {
		return
	}
	c.startDial()
}

func (c *Client) handlePingTimer(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pingTimer.fired(seq) {
		return
	}
	cn := c.conn
	if cn == nil || c.state != StateConnected {
		return
	}

	if err := cn.enqueue(Message{Payload: PingPayload{}}); err != nil {
		c.logger.Error().Err(err).Msg("ping dropped")
	} else if !c.pongTimer.pending() {
		c.pongTimer.arm(c.clock, c.cfg.PongTimeout, c.handlePongTimeout)
	}
	c.pingTimer.arm(c.clock, c.cfg.PingInterval, c.handlePingTimer)
}

func (c *Client) handlePongTimeout(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pongTimer.fired(seq) {
		return
	}
	if c.conn == nil {
		return
	}

	c.logger.Warn().Dur("timeout", c.cfg.PongTimeout).Msg("pong timeout, closing connection")
	c.dropConn(websocket.StatusGoingAway, "pong timeout")
	c.scheduleReconnect(NewError(ErrorPongTimeout, "no pong within "+c.cfg.PongTimeout.String()))
}

// --- per-connection goroutines ---

func (c *Client) readLoop(cn *connection) {
	for {
		data, err := cn.t.Read(cn.ctx)
		if err != nil {
			c.handleTransportClosed(cn, err)
			return
		}
		c.handleFrame(cn, data)
	}
}

func (c *Client) writeLoop(cn *connection) {
	for {
		select {
		case <-cn.wake:
		case <-cn.ctx.Done():
			return
		}

		c.mu.Lock()
		if c.conn != cn {
			c.mu.Unlock()
			return
		}
		batch := cn.pending
		cn.pending = nil
		cn.inflight = batch
		c.mu.Unlock()

		for _, f := range batch {
			if err := cn.t.Write(cn.ctx, f.data); err != nil {
				c.logger.Warn().Err(err).Str("kind", string(f.msg.Kind())).Msg("write failed")
				c.handleTransportClosed(cn, err)
				return
			}

			// A frame leaves inflight only once written. If the connection
			// was dropped meanwhile, the rest of the batch is already requeued.
			c.mu.Lock()
			if c.conn != cn {
				c.mu.Unlock()
				return
			}
			cn.inflight = cn.inflight[1:]
			c.mu.Unlock()
		}
	}
}

// outFrame is a message accepted by a connection, already encoded.
type outFrame struct {
	msg  Message
	data json.RawMessage
}

// connection is the per-transport state. pending and inflight are guarded
// by Client.mu. inflight is the writer's batch minus the frames it has
// finished writing.
type connection struct {
	t        Transport
	ctx      context.Context
	cancel   context.CancelFunc
	pending  []outFrame
	inflight []outFrame
	wake     chan struct{}
	once     sync.Once
}

func newConnection(t Transport) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
}

func (cn *connection) enqueue(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	cn.pending = append(cn.pending, outFrame{msg: m, data: data})
	select {
	case cn.wake <- struct{}{}:
	default:
	}
	return nil
}

// close shuts the transport down once, off the caller's goroutine.
func (cn *connection) close(code websocket.StatusCode, reason string) {
	cn.once.Do(func() {
		go func() {
			_ = cn.t.Close(code, reason)
			cn.cancel()
		}()
	})
}

// timerSlot holds at most one armed timer. seq invalidates callbacks of
// timers that were stopped or replaced after they had already fired.
type timerSlot struct {
	t   Timer
	seq uint64
}

func (s *timerSlot) arm(clk Clock, d time.Duration, fn func(seq uint64)) {
	s.stop()
	seq := s.seq
	s.t = clk.AfterFunc(d, func() { fn(seq) })
}

func (s *timerSlot) stop() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
	s.seq++
}

// fired reports whether seq is the live timer and marks it spent.
func (s *timerSlot) fired(seq uint64) bool {
	if s.t == nil || s.seq != seq {
		return false
	}
	s.t = nil
	return true
}

func (s *timerSlot) pending() bool { return s.t != nil }
