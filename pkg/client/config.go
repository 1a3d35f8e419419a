package client

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Config holds configuration for a sync client instance. Every
// instance owns its own copy; nothing here is process-wide.
type Config struct {
	// Endpoint is the server base URL, e.g. "ws://localhost:8080".
	Endpoint string

	// Path is the websocket path on the endpoint.
	// Default: "/sync/ws".
	Path string

	// HiveID is the scoping identifier: which hive's event stream the
	// client subscribes to. Carried as the "hive" query parameter.
	HiveID string

	// ClientID identifies this client as the originator of the
	// envelopes it sends. Default: protocol.OriginatorUnknown.
	ClientID string

	// Header is attached to the dial request, e.g. for a bearer
	// token. Authentication itself is outside this package.
	Header http.Header

	// Policy governs automatic reconnection backoff.
	// Default: DefaultPolicy().
	Policy Policy

	// HandshakeTimeout bounds dial plus welcome.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each envelope write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// QueueHighWater is the buffered-action count at which a warning
	// is logged. 0 disables the warning. The queue itself is
	// unbounded. Default: 256.
	QueueHighWater int

	// Transport overrides the connection factory. Tests inject a fake
	// here. Default: a WebSocketTransport.
	Transport Transport

	// Logger receives structured diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives connection and traffic counters. Nil disables
	// instrumentation.
	Metrics *Metrics

	// Lifecycle callbacks. Each receives human-readable diagnostic
	// context; the UI layer surfaces these to users and telemetry.

	// OnConnect fires after every successful handshake, including
	// reconnects, with a description of the established session.
	OnConnect func(info string)

	// OnDisconnect fires when a connection ends, with the reason.
	OnDisconnect func(reason string)

	// OnError fires on handshake failures and retry exhaustion.
	OnError func(message string)
}

// DefaultConfig returns a Config with sensible defaults. HiveID and
// Endpoint must still be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Path:             "/sync/ws",
		Policy:           DefaultPolicy(),
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		QueueHighWater:   256,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Header != nil {
		clone.Header = c.Header.Clone()
	}
	return &clone
}

// WithEndpoint sets the server base URL and returns the config for
// chaining.
func (c *Config) WithEndpoint(endpoint string) *Config {
	c.Endpoint = endpoint
	return c
}

// WithHive sets the scoping identifier and returns the config for
// chaining.
func (c *Config) WithHive(hiveID string) *Config {
	c.HiveID = hiveID
	return c
}

// WithClientID sets the originator identity and returns the config
// for chaining.
func (c *Config) WithClientID(id string) *Config {
	c.ClientID = id
	return c
}

// WithPolicy sets the reconnection policy and returns the config for
// chaining.
func (c *Config) WithPolicy(p Policy) *Config {
	c.Policy = p
	return c
}

// WithTransport sets the transport and returns the config for
// chaining.
func (c *Config) WithTransport(t Transport) *Config {
	c.Transport = t
	return c
}

// WithMetrics sets the Prometheus instrumentation and returns the
// config for chaining.
func (c *Config) WithMetrics(m *Metrics) *Config {
	c.Metrics = m
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

func defaultLogger() *slog.Logger {
	return slog.Default()
}

// url builds the dial URL for the configured hive.
func (c *Config) url() string {
	u := c.Endpoint + c.Path
	q := url.Values{}
	q.Set("hive", c.HiveID)
	if c.ClientID != "" {
		q.Set("client", c.ClientID)
	}
	return u + "?" + q.Encode()
}
