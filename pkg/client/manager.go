package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/focushive/hivesync/pkg/protocol"
)

const tracerName = "hivesync"

// Manager owns the transport handle and the connection state machine.
// It is the only component that mutates State or touches the
// connection; everything else goes through Connect, Disconnect,
// Reconnect and Send.
type Manager struct {
	cfg       *Config
	policy    Policy
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	transport Transport
	queue     *Queue

	// deliver hands inbound envelopes (and locally synthesized
	// lifecycle pseudo-events) to the dispatcher.
	deliver func(*protocol.Envelope)

	mu       sync.Mutex
	state    State
	conn     Conn
	attempts int
	lastErr  string
	closed   bool

	// gen identifies the current connection epoch. Every Disconnect
	// and every new dial bumps it; read loops, in-flight dials and
	// scheduled timers carry the gen they were started under and
	// become no-ops once it is stale.
	gen   uint64
	timer *time.Timer
}

// NewManager creates a connection manager. cfg must already be
// normalized (see New); queue buffers sends issued while not
// connected; deliver receives every inbound envelope.
func NewManager(cfg *Config, queue *Queue, deliver func(*protocol.Envelope)) *Manager {
	return &Manager{
		cfg:       cfg,
		policy:    cfg.Policy,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer(tracerName),
		transport: cfg.Transport,
		queue:     queue,
		deliver:   deliver,
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the reconnection attempt counter. It resets to 0 on
// every successful connect and increments on every failure or
// unexpected disconnect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastError returns the human-readable description of the most recent
// error, or "" if the last handshake succeeded.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// transitionLocked moves the state machine along one edge. Called with
// m.mu held. An edge not in the state machine indicates a bug; it is
// logged and refused.
func (m *Manager) transitionLocked(to State) {
	if m.state == to {
		return
	}
	if !validTransition(m.state, to) {
		m.logger.Error("illegal state transition refused",
			"from", m.state.String(), "to", to.String())
		return
	}
	m.logger.Debug("state transition",
		"from", m.state.String(), "to", to.String())
	m.state = to
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Connect initiates a connection. Idempotent: a no-op while Connected
// or Connecting. From Reconnecting it supersedes the pending backoff
// timer and dials immediately.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.cfg.HiveID == "" {
		m.lastErr = ErrNoHive.Error()
		m.mu.Unlock()
		m.fireError(ErrNoHive.Error())
		return
	}

	switch m.state {
	case Connected, Connecting:
		m.mu.Unlock()
		return
	case Reconnecting:
		m.stopTimerLocked()
		m.gen++
		gen, url := m.gen, m.cfg.url()
		m.mu.Unlock()
		go m.dial(gen, url, true)
		return
	}

	// Disconnected or Failed.
	m.stopTimerLocked()
	m.transitionLocked(Connecting)
	m.gen++
	gen, url := m.gen, m.cfg.url()
	m.mu.Unlock()
	go m.dial(gen, url, false)
}

// Disconnect tears down the transport unconditionally, cancels any
// scheduled reconnect, and moves to Disconnected. Idempotent.
func (m *Manager) Disconnect() {
	m.disconnect("disconnect requested")
}

func (m *Manager) disconnect(reason string) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.gen++
	prev := m.state
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if prev == Disconnected {
		m.mu.Unlock()
		return
	}
	m.transitionLocked(Disconnected)
	m.mu.Unlock()

	m.logger.Info("disconnected", "reason", reason)
	if m.cfg.OnDisconnect != nil {
		m.cfg.OnDisconnect(reason)
	}
	m.dispatchLifecycle(protocol.LifecycleDisconnect, &protocol.Disconnected{Reason: reason})
}

// Reconnect is the manual override: a no-op while Connecting or
// Connected, otherwise it disconnects and schedules a fresh connect
// after the base delay.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed || m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.disconnect("reconnect requested")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	gen := m.gen
	m.timer = time.AfterFunc(m.policy.BaseDelay, func() {
		m.mu.Lock()
		if m.closed || gen != m.gen || m.state != Disconnected {
			m.mu.Unlock()
			return
		}
		m.transitionLocked(Connecting)
		m.gen++
		dialGen, url := m.gen, m.cfg.url()
		m.mu.Unlock()
		m.dial(dialGen, url, false)
	})
}

// Close disconnects and permanently disables the manager, discarding
// any still-queued actions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.disconnect("client closed")
	if dropped := m.queue.Drain(); len(dropped) > 0 {
		m.logger.Warn("discarding queued actions at close", "count", len(dropped))
	}
	m.metrics.RecordQueueDepth(0)
}

// Send transmits an action immediately if Connected, otherwise buffers
// it in the outbound queue. The only synchronous failure is a payload
// that cannot be marshaled; transport errors surface through
// LastError.
func (m *Manager) Send(typ string, payload any) error {
	if typ == "" {
		return protocol.ErrEmptyType
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("client: marshal %s payload: %w", typ, err)
		}
		raw = b
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == Connected && m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		m.transmit(conn, typ, raw, time.Now().UTC())
		return nil
	}
	m.mu.Unlock()

	m.queue.Enqueue(QueuedAction{Type: typ, Payload: raw, EnqueuedAt: time.Now().UTC()})
	depth := m.queue.Len()
	m.metrics.RecordQueued(depth)
	m.logger.Debug("action queued while offline", "type", typ, "depth", depth)
	return nil
}

// transmit writes one action envelope. A write failure re-buffers the
// action and records the error; the read loop notices the dead
// connection and drives the retry path.
func (m *Manager) transmit(conn Conn, typ string, raw json.RawMessage, issuedAt time.Time) {
	_, span := m.tracer.Start(context.Background(), "hivesync.send",
		trace.WithAttributes(
			attribute.String("hivesync.envelope_type", typ),
			attribute.String("hivesync.hive", m.hive()),
		))
	defer span.End()

	env := &protocol.Envelope{
		Type:       typ,
		Payload:    raw,
		Timestamp:  issuedAt,
		Originator: m.originator(),
	}
	if err := conn.WriteEnvelope(env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		m.mu.Lock()
		m.lastErr = fmt.Sprintf("send %s failed: %v", typ, err)
		m.mu.Unlock()
		m.logger.Warn("send failed, action re-queued", "type", typ, "error", err)
		m.queue.Enqueue(QueuedAction{Type: typ, Payload: raw, EnqueuedAt: issuedAt})
		m.metrics.RecordQueued(m.queue.Len())
		return
	}
	span.SetStatus(codes.Ok, "")
	m.metrics.RecordSend(typ)
}

func (m *Manager) hive() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.HiveID
}

func (m *Manager) originator() string {
	if m.cfg.ClientID != "" {
		return m.cfg.ClientID
	}
	return protocol.OriginatorUnknown
}

// setHive swaps the scoping identifier. The caller (Client.SetHive)
// is responsible for the teardown/re-establish cycle around it.
func (m *Manager) setHive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.HiveID = id
}

// dial performs one connection attempt for the given epoch. It runs
// outside the lock; results are committed only if the epoch is still
// current.
func (m *Manager) dial(gen uint64, url string, reconnect bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()

	ctx, span := m.tracer.Start(ctx, "hivesync.connect",
		trace.WithAttributes(
			attribute.String("hivesync.hive", m.hive()),
			attribute.Bool("hivesync.reconnect", reconnect),
		))
	defer span.End()

	conn, welcome, err := m.transport.Dial(ctx, url, m.cfg.Header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.dialFailed(gen, url, reconnect, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	m.dialSucceeded(gen, conn, welcome, reconnect)
}

func (m *Manager) dialFailed(gen uint64, url string, reconnect bool, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	cerr := &ConnectError{URL: url, Attempt: attempt, Reconnect: reconnect, Err: err}
	m.lastErr = cerr.Error()

	retry := m.policy.ShouldRetry(attempt)
	if reconnect {
		// Stays Reconnecting between attempts; Failed only once the
		// budget is spent.
		if retry {
			m.scheduleRetryLocked(m.policy.NextDelay(attempt), true)
		} else {
			m.transitionLocked(Failed)
		}
	} else {
		m.transitionLocked(Failed)
		if retry {
			m.scheduleRetryLocked(m.policy.NextDelay(attempt), false)
		}
	}
	m.mu.Unlock()

	m.metrics.RecordConnectError()
	m.logger.Warn("connection attempt failed",
		"attempt", attempt, "reconnect", reconnect, "error", err)
	m.fireError(cerr.Error())

	tag := protocol.LifecycleConnectError
	if reconnect {
		tag = protocol.LifecycleReconnectError
	}
	m.dispatchLifecycle(tag, &protocol.Disconnected{Reason: err.Error(), Attempt: attempt})

	if !retry {
		m.retriesExhausted(attempt)
	}
}

func (m *Manager) retriesExhausted(attempt int) {
	msg := fmt.Sprintf("giving up after %d attempts; call Reconnect to resume", attempt)
	m.logger.Error("reconnection retries exhausted", "attempts", attempt)
	m.fireError(msg)
	m.dispatchLifecycle(protocol.LifecycleReconnectFailed,
		&protocol.Disconnected{Reason: msg, Attempt: attempt})
}

func (m *Manager) dialSucceeded(gen uint64, conn Conn, welcome *protocol.Welcome, reconnect bool) {
	m.mu.Lock()
	if m.closed || gen != m.gen || (m.state != Connecting && m.state != Reconnecting) {
		// A Disconnect or a newer Connect superseded this dial.
		m.mu.Unlock()
		conn.Close()
		return
	}
	wasRetry := reconnect || m.attempts > 0
	m.transitionLocked(Connected)
	m.attempts = 0
	m.lastErr = ""
	m.conn = conn
	m.mu.Unlock()

	m.metrics.RecordConnect(wasRetry)
	m.logger.Info("connected",
		"hive", welcome.HiveID, "session", welcome.SessionID, "reconnect", wasRetry)
	if m.cfg.OnConnect != nil {
		m.cfg.OnConnect(fmt.Sprintf("connected to hive %s (session %s)",
			welcome.HiveID, welcome.SessionID))
	}
	m.dispatchLifecycle(protocol.LifecycleConnect, welcome)
	if wasRetry {
		m.dispatchLifecycle(protocol.LifecycleReconnect, &protocol.Disconnected{Reason: "reconnected"})
	}

	// Exactly one flush per transition into Connected, before the read
	// loop starts delivering application envelopes.
	sent, err := m.queue.Flush(func(a QueuedAction) error {
		env := &protocol.Envelope{
			Type:       a.Type,
			Payload:    a.Payload,
			Timestamp:  a.EnqueuedAt,
			Originator: m.originator(),
		}
		if werr := conn.WriteEnvelope(env); werr != nil {
			return werr
		}
		m.metrics.RecordSend(a.Type)
		return nil
	})
	m.metrics.RecordQueueDepth(m.queue.Len())
	if sent > 0 {
		m.logger.Info("flushed queued actions", "sent", sent)
	}
	if err != nil {
		m.logger.Warn("queue flush interrupted", "sent", sent, "error", err)
	}

	go m.readLoop(gen, conn)
}

// readLoop pumps inbound envelopes for one connection epoch.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			m.connDropped(gen, conn, err)
			return
		}
		m.metrics.RecordEnvelope(env.Type)
		m.deliver(env)
	}
}

// connDropped handles an unexpected transport drop: same retry path as
// a handshake failure.
func (m *Manager) connDropped(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != Connected {
		// The drop was caused by an explicit Disconnect or has been
		// superseded; nothing to do.
		m.mu.Unlock()
		conn.Close()
		return
	}
	conn.Close()
	m.conn = nil
	m.attempts++
	attempt := m.attempts
	reason := fmt.Sprintf("connection lost: %v", err)
	m.lastErr = reason

	retry := m.policy.ShouldRetry(attempt)
	if retry {
		m.transitionLocked(Reconnecting)
		m.scheduleRetryLocked(m.policy.NextDelay(attempt), true)
	} else {
		m.transitionLocked(Failed)
	}
	m.mu.Unlock()

	m.metrics.RecordDisconnect()
	m.logger.Warn("connection dropped", "attempt", attempt, "error", err)
	if m.cfg.OnDisconnect != nil {
		m.cfg.OnDisconnect(reason)
	}
	m.dispatchLifecycle(protocol.LifecycleDisconnect,
		&protocol.Disconnected{Reason: reason, Attempt: attempt})

	if !retry {
		m.retriesExhausted(attempt)
	}
}

// scheduleRetryLocked arms the reconnect timer for the current epoch.
// Called with m.mu held.
func (m *Manager) scheduleRetryLocked(delay time.Duration, reconnect bool) {
	gen := m.gen
	m.logger.Debug("reconnect scheduled", "delay", delay, "attempt", m.attempts)
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || gen != m.gen {
			// Cancelled by Disconnect or superseded by a new Connect.
			m.mu.Unlock()
			return
		}
		switch m.state {
		case Failed:
			m.transitionLocked(Connecting)
		case Reconnecting:
			// Stay; the retry dial runs under the same state.
		default:
			m.mu.Unlock()
			return
		}
		m.gen++
		dialGen, url := m.gen, m.cfg.url()
		m.mu.Unlock()
		m.dial(dialGen, url, reconnect)
	})
}

func (m *Manager) fireError(msg string) {
	if m.cfg.OnError != nil {
		m.cfg.OnError(msg)
	}
}

// dispatchLifecycle synthesizes a local pseudo-event envelope so
// subscribers can observe transport health alongside application
// events.
func (m *Manager) dispatchLifecycle(tag string, payload any) {
	env, err := protocol.NewEnvelope(tag, payload, protocol.OriginatorSystem)
	if err != nil {
		m.logger.Error("lifecycle envelope", "tag", tag, "error", err)
		return
	}
	m.deliver(env)
}
