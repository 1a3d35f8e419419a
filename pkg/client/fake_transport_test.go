package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/focushive/hivesync/pkg/protocol"
)

// fakeConn is an in-memory Conn for tests: it records writes and lets
// the test push inbound envelopes or drop the connection.
type fakeConn struct {
	mu         sync.Mutex
	writes     []*protocol.Envelope
	failWrites bool

	inbound   chan *protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan *protocol.Envelope, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadEnvelope() (*protocol.Envelope, error) {
	select {
	case env := <-c.inbound:
		return env, nil
	case <-c.done:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteEnvelope(env *protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("write failed")
	}
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	c.writes = append(c.writes, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Drop simulates a server-side connection loss.
func (c *fakeConn) Drop() { c.Close() }

// Push delivers an inbound envelope to the read loop.
func (c *fakeConn) Push(env *protocol.Envelope) { c.inbound <- env }

func (c *fakeConn) Writes() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.writes...)
}

func (c *fakeConn) SetFailWrites(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = fail
}

func (c *fakeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fakeTransport scripts dial outcomes: the first failures dials are
// refused (or all of them with failAll), the rest hand out fakeConns.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	failAll  bool
	dials    []string
	conns    []*fakeConn

	// gate, when non-nil, blocks every Dial until it is closed.
	gate chan struct{}
}

func (t *fakeTransport) Dial(ctx context.Context, rawURL string, _ http.Header) (Conn, *protocol.Welcome, error) {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	t.mu.Lock()
	t.dials = append(t.dials, rawURL)
	n := len(t.dials)
	if t.failAll || n <= t.failures {
		t.mu.Unlock()
		return nil, nil, fmt.Errorf("dial refused (attempt %d)", n)
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()

	return conn, &protocol.Welcome{
		SessionID:  fmt.Sprintf("s%d", n),
		HiveID:     hiveParam(rawURL),
		ServerTime: time.Now().UTC(),
	}, nil
}

func (t *fakeTransport) SetFailAll(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAll = fail
}

func (t *fakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

func (t *fakeTransport) LastURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.dials) == 0 {
		return ""
	}
	return t.dials[len(t.dials)-1]
}

func (t *fakeTransport) Conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 {
		i += len(t.conns)
	}
	return t.conns[i]
}

func hiveParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("hive")
}

// tagRecorder collects dispatched envelope tags across goroutines.
type tagRecorder struct {
	mu   sync.Mutex
	tags []string
}

func (r *tagRecorder) record(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, env.Type)
}

func (r *tagRecorder) has(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *tagRecorder) count(tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tags {
		if t == tag {
			n++
		}
	}
	return n
}

// fastConfig returns a config with millisecond backoff so retry tests
// run quickly.
func fastConfig(tr Transport) *Config {
	return DefaultConfig().
		WithEndpoint("ws://test").
		WithHive("hive-1").
		WithTransport(tr).
		WithPolicy(Policy{
			BaseDelay:   2 * time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			MaxAttempts: 5,
		}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
