package client

import (
	"github.com/focushive/hivesync/pkg/protocol"
)

// Snapshot is the observable state the UI layer polls. It is a value
// copy; reading it never blocks the connection machinery.
type Snapshot struct {
	State             State
	IsConnected       bool
	IsConnecting      bool
	LastError         string
	ReconnectAttempts int

	// CanReconnect reports whether offering a manual "Reconnect"
	// action makes sense: not already connecting or connected, and
	// the automatic retry budget not yet exhausted.
	CanReconnect bool

	// IsHealthy reports a connected client with no recorded error.
	IsHealthy bool

	// QueueDepth is the number of actions buffered while offline.
	QueueDepth int
}

// Client is the sync client: the composition root wiring the
// connection manager, the outbound queue and the event dispatcher.
// Each instance owns its own connection; multiple hives can be active
// in one process without interfering.
type Client struct {
	cfg   *Config
	queue *Queue
	disp  *Dispatcher
	mgr   *Manager
}

// New creates a sync client from cfg. Zero-valued fields are filled
// from DefaultConfig; the config is cloned, so the caller's copy can
// be reused.
func New(cfg *Config) *Client {
	cfg = normalize(cfg)
	queue := NewQueue(cfg.Logger, cfg.QueueHighWater)
	disp := NewDispatcher(cfg.Logger)
	mgr := NewManager(cfg, queue, disp.Dispatch)
	return &Client{cfg: cfg, queue: queue, disp: disp, mgr: mgr}
}

func normalize(cfg *Config) *Config {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	} else {
		cfg = cfg.Clone()
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = def.Policy
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}
	if cfg.Transport == nil {
		cfg.Transport = &WebSocketTransport{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		}
	}
	return cfg
}

// Connect initiates the connection to the configured hive.
func (c *Client) Connect() { c.mgr.Connect() }

// Disconnect tears down the connection and cancels pending reconnects.
func (c *Client) Disconnect() { c.mgr.Disconnect() }

// Reconnect forces a fresh connection cycle; a no-op while already
// connecting or connected.
func (c *Client) Reconnect() { c.mgr.Reconnect() }

// Close disconnects and releases the client. The transport never
// outlives its owner: callers must Close at teardown.
func (c *Client) Close() { c.mgr.Close() }

// Send transmits an action, or buffers it while disconnected. The
// only synchronous error is an unmarshalable payload.
func (c *Client) Send(typ string, payload any) error {
	return c.mgr.Send(typ, payload)
}

// Subscribe registers fn for inbound envelopes with the given tag.
func (c *Client) Subscribe(tag string, fn Handler) *Subscription {
	return c.disp.Subscribe(tag, fn)
}

// SubscribeAll registers fn for every inbound envelope.
func (c *Client) SubscribeAll(fn Handler) *Subscription {
	return c.disp.SubscribeAll(fn)
}

// LastEnvelope returns the most recently received envelope, or nil.
func (c *Client) LastEnvelope() *protocol.Envelope {
	return c.disp.Last()
}

// Snapshot returns the current observable state.
func (c *Client) Snapshot() Snapshot {
	state := c.mgr.State()
	attempts := c.mgr.Attempts()
	lastErr := c.mgr.LastError()
	return Snapshot{
		State:             state,
		IsConnected:       state == Connected,
		IsConnecting:      state == Connecting || state == Reconnecting,
		LastError:         lastErr,
		ReconnectAttempts: attempts,
		CanReconnect: state != Connected && state != Connecting &&
			state != Reconnecting && attempts < c.cfg.Policy.MaxAttempts,
		IsHealthy:  state == Connected && lastErr == "",
		QueueDepth: c.queue.Len(),
	}
}

// Hive returns the current scoping identifier.
func (c *Client) Hive() string {
	return c.mgr.hive()
}

// SetHive switches the client to a different hive. If a connection is
// live (or being established) it is torn down and exactly one new
// connection is made under the new identifier; the client never
// silently keeps streaming the old hive.
func (c *Client) SetHive(id string) {
	if c.mgr.hive() == id {
		return
	}
	state := c.mgr.State()
	active := state == Connected || state == Connecting || state == Reconnecting
	c.mgr.Disconnect()
	c.mgr.setHive(id)
	if active {
		c.mgr.Connect()
	}
}

// JoinHive announces membership in a hive. Thin wrapper over Send.
func (c *Client) JoinHive(hiveID string) error {
	return c.Send(protocol.ActionJoinHive, &protocol.JoinHive{HiveID: hiveID})
}

// LeaveHive announces departure from a hive.
func (c *Client) LeaveHive(hiveID string) error {
	return c.Send(protocol.ActionLeaveHive, &protocol.LeaveHive{HiveID: hiveID})
}

// AddToQueue proposes a track for the hive's collaborative queue.
func (c *Client) AddToQueue(track protocol.Track) error {
	return c.Send(protocol.ActionAddToQueue, &protocol.AddToQueue{Track: track})
}

// VoteTrack casts a vote (+1 or -1) on a queued track.
func (c *Client) VoteTrack(trackID string, vote int) error {
	return c.Send(protocol.ActionVoteTrack, &protocol.VoteTrack{TrackID: trackID, Vote: vote})
}

// PlaybackUpdate reports the local playback position.
func (c *Client) PlaybackUpdate(trackID string, positionMS int, playing bool) error {
	return c.Send(protocol.ActionPlaybackUpdate, &protocol.PlaybackUpdate{
		TrackID:    trackID,
		PositionMS: positionMS,
		Playing:    playing,
	})
}
