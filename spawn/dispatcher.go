package spawn

import "sync"

// Listener receives everything a consumer needs to drive a UI.
type Listener interface {
	OnMessage(Message)
	OnStateChange(StateEvent)
}

// Dispatcher routes client events to registered callbacks.
type Dispatcher struct {
	mu          sync.RWMutex
	onMessage   func(Message)
	onChat      func(ChatPayload, Message)
	onHeartbeat func(HeartbeatPayload, Message)
	onSystem    func(SystemPayload, Message)
	onState     func(StateEvent)
	onReconnect func(ReconnectEvent)
}

func (d *Dispatcher) SetOnMessage(fn func(Message)) {
	d.set(func() { d.onMessage = fn })
}

func (d *Dispatcher) SetOnChat(fn func(ChatPayload, Message)) {
	d.set(func() { d.onChat = fn })
}

func (d *Dispatcher) SetOnHeartbeat(fn func(HeartbeatPayload, Message)) {
	d.set(func() { d.onHeartbeat = fn })
}

func (d *Dispatcher) SetOnSystem(fn func(SystemPayload, Message)) {
	d.set(func() { d.onSystem = fn })
}

func (d *Dispatcher) SetOnStateChange(fn func(StateEvent)) {
	d.set(func() { d.onState = fn })
}

func (d *Dispatcher) SetOnReconnect(fn func(ReconnectEvent)) {
	d.set(func() { d.onReconnect = fn })
}

func (d *Dispatcher) set(apply func()) {
	d.mu.Lock()
	apply()
	d.mu.Unlock()
}

// Dispatch hands m to the generic callback and then to the typed one.
// Control messages never reach callbacks.
func (d *Dispatcher) Dispatch(m Message) {
	if m.Payload == nil || m.Kind().control() {
		return
	}
	d.mu.RLock()
	onMessage, onChat, onHeartbeat, onSystem := d.onMessage, d.onChat, d.onHeartbeat, d.onSystem
	d.mu.RUnlock()

	if onMessage != nil {
		onMessage(m)
	}
	switch p := m.Payload.(type) {
	case ChatPayload:
		if onChat != nil {
			onChat(p, m)
		}
	case HeartbeatPayload:
		if onHeartbeat != nil {
			onHeartbeat(p, m)
		}
	case SystemPayload:
		if onSystem != nil {
			onSystem(p, m)
		}
	}
}

func (d *Dispatcher) DispatchState(ev StateEvent) {
	d.mu.RLock()
	fn := d.onState
	d.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (d *Dispatcher) DispatchReconnect(ev ReconnectEvent) {
	d.mu.RLock()
	fn := d.onReconnect
	d.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}
