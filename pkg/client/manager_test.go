package client

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/focushive/hivesync/pkg/protocol"
)

func TestConnectSuccess(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	snap := c.Snapshot()
	if snap.IsConnected || snap.ReconnectAttempts != 0 {
		t.Fatalf("fresh client snapshot = %+v", snap)
	}

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	snap = c.Snapshot()
	if snap.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0", snap.ReconnectAttempts)
	}
	if !snap.IsHealthy {
		t.Errorf("IsHealthy = false, snapshot %+v", snap)
	}
	if !strings.Contains(tr.LastURL(), "hive=hive-1") {
		t.Errorf("dial URL = %q, want hive-1 scoping parameter", tr.LastURL())
	}
}

func TestConnectIdempotentWhileConnecting(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	c.Connect()
	c.Connect()
	close(tr.gate)

	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })
	if n := tr.DialCount(); n != 1 {
		t.Errorf("DialCount() = %d, want 1 despite repeated Connect", n)
	}
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	c.Connect()
	time.Sleep(20 * time.Millisecond)
	if n := tr.DialCount(); n != 1 {
		t.Errorf("DialCount() = %d, want 1", n)
	}
}

func TestSendWhileConnectedBypassesQueue(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	if err := c.AddToQueue(protocol.Track{ID: "t1"}); err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}

	conn := tr.Conn(0)
	waitFor(t, "transmission", func() bool { return len(conn.Writes()) == 1 })

	writes := conn.Writes()
	if writes[0].Type != protocol.ActionAddToQueue {
		t.Errorf("sent type = %q, want %q", writes[0].Type, protocol.ActionAddToQueue)
	}
	if !strings.Contains(string(writes[0].Payload), `"t1"`) {
		t.Errorf("sent payload = %s", writes[0].Payload)
	}
	if depth := c.Snapshot().QueueDepth; depth != 0 {
		t.Errorf("QueueDepth = %d, want 0", depth)
	}
}

func TestSendWhileDisconnectedQueuesAndFlushes(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	if err := c.Send(protocol.ActionAddToQueue, &protocol.AddToQueue{Track: protocol.Track{ID: "t1"}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := c.Send(protocol.ActionAddToQueue, &protocol.AddToQueue{Track: protocol.Track{ID: "t2"}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if tr.DialCount() != 0 {
		t.Fatal("offline send touched the transport")
	}
	if depth := c.Snapshot().QueueDepth; depth != 2 {
		t.Fatalf("QueueDepth = %d, want 2", depth)
	}

	c.Connect()
	waitFor(t, "flush", func() bool {
		return c.Snapshot().IsConnected && len(tr.Conn(0).Writes()) == 2
	})

	writes := tr.Conn(0).Writes()
	if !strings.Contains(string(writes[0].Payload), `"t1"`) ||
		!strings.Contains(string(writes[1].Payload), `"t2"`) {
		t.Errorf("flush out of order: %s then %s", writes[0].Payload, writes[1].Payload)
	}
	if depth := c.Snapshot().QueueDepth; depth != 0 {
		t.Errorf("QueueDepth after flush = %d, want 0", depth)
	}
}

func TestHandshakeFailuresExhaustRetries(t *testing.T) {
	tr := &fakeTransport{failAll: true}
	var errorCalls atomic.Int32
	cfg := fastConfig(tr)
	cfg.OnError = func(string) { errorCalls.Add(1) }
	rec := &tagRecorder{}
	c := New(cfg)
	defer c.Close()
	c.SubscribeAll(rec.record)

	c.Connect()
	waitFor(t, "retry exhaustion", func() bool {
		snap := c.Snapshot()
		return snap.ReconnectAttempts == 5 && snap.State == Failed
	})

	// No further automatic retries beyond the cap.
	time.Sleep(50 * time.Millisecond)
	if n := tr.DialCount(); n != 5 {
		t.Errorf("DialCount() = %d, want 5", n)
	}

	snap := c.Snapshot()
	if snap.CanReconnect {
		t.Error("CanReconnect = true after exhaustion, want false")
	}
	if snap.LastError == "" {
		t.Error("LastError empty after repeated failures")
	}
	if !rec.has(protocol.LifecycleConnectError) {
		t.Error("no connect_error pseudo-event dispatched")
	}
	if !rec.has(protocol.LifecycleReconnectFailed) {
		t.Error("no reconnect_failed pseudo-event dispatched")
	}
	if errorCalls.Load() == 0 {
		t.Error("OnError never fired")
	}
}

func TestAttemptsResetOnSuccess(t *testing.T) {
	tr := &fakeTransport{failures: 2}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected after retries", func() bool { return c.Snapshot().IsConnected })

	snap := c.Snapshot()
	if snap.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0 after success", snap.ReconnectAttempts)
	}
	if snap.LastError != "" {
		t.Errorf("LastError = %q, want cleared on success", snap.LastError)
	}
	if n := tr.DialCount(); n != 3 {
		t.Errorf("DialCount() = %d, want 3", n)
	}
}

func TestUnexpectedDropReconnects(t *testing.T) {
	tr := &fakeTransport{}
	var disconnects atomic.Int32
	cfg := fastConfig(tr)
	cfg.OnDisconnect = func(string) { disconnects.Add(1) }
	rec := &tagRecorder{}
	c := New(cfg)
	defer c.Close()
	c.SubscribeAll(rec.record)

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	tr.Conn(0).Drop()
	waitFor(t, "reconnected", func() bool {
		return c.Snapshot().IsConnected && tr.DialCount() == 2
	})

	snap := c.Snapshot()
	if snap.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d, want 0 after reconnect", snap.ReconnectAttempts)
	}
	if disconnects.Load() == 0 {
		t.Error("OnDisconnect never fired for the drop")
	}
	if !rec.has(protocol.LifecycleDisconnect) {
		t.Error("no disconnect pseudo-event dispatched")
	}
	if !rec.has(protocol.LifecycleReconnect) {
		t.Error("no reconnect pseudo-event dispatched")
	}
}

func TestDisconnectCancelsScheduledRetry(t *testing.T) {
	tr := &fakeTransport{failAll: true}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "first failure", func() bool { return c.Snapshot().ReconnectAttempts >= 1 })

	c.Disconnect()
	dials := tr.DialCount()
	time.Sleep(50 * time.Millisecond)

	if n := tr.DialCount(); n != dials {
		t.Errorf("DialCount() grew from %d to %d after Disconnect", dials, n)
	}
	if state := c.Snapshot().State; state != Disconnected {
		t.Errorf("State = %s, want disconnected", state)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	var disconnects atomic.Int32
	cfg := fastConfig(tr)
	cfg.OnDisconnect = func(string) { disconnects.Add(1) }
	c := New(cfg)
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	c.Disconnect()
	c.Disconnect()
	c.Disconnect()

	if got := disconnects.Load(); got != 1 {
		t.Errorf("OnDisconnect fired %d times, want 1", got)
	}
	if !tr.Conn(0).Closed() {
		t.Error("transport connection not closed")
	}
}

func TestReconnectNoOpWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	c.Reconnect()
	time.Sleep(30 * time.Millisecond)

	if n := tr.DialCount(); n != 1 {
		t.Errorf("DialCount() = %d, want 1 (Reconnect must be a no-op)", n)
	}
	if !c.Snapshot().IsConnected {
		t.Error("Reconnect dropped a healthy connection")
	}
}

func TestReconnectAfterExhaustion(t *testing.T) {
	tr := &fakeTransport{failAll: true}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "exhaustion", func() bool { return c.Snapshot().State == Failed })

	tr.SetFailAll(false)
	c.Reconnect()
	waitFor(t, "manual reconnect", func() bool { return c.Snapshot().IsConnected })

	if snap := c.Snapshot(); snap.ReconnectAttempts != 0 || !snap.IsHealthy {
		t.Errorf("snapshot after manual reconnect = %+v", snap)
	}
}

func TestWriteFailureRequeuesAction(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	tr.Conn(0).SetFailWrites(true)
	if err := c.VoteTrack("t1", 1); err != nil {
		t.Fatalf("VoteTrack() error = %v", err)
	}

	waitFor(t, "requeue", func() bool { return c.Snapshot().QueueDepth == 1 })
	if c.Snapshot().LastError == "" {
		t.Error("LastError not recorded for failed write")
	}
}

func TestWriteFailuresPreserveOrder(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	tr.Conn(0).SetFailWrites(true)
	if err := c.VoteTrack("t1", 1); err != nil {
		t.Fatalf("VoteTrack() error = %v", err)
	}
	if err := c.VoteTrack("t2", 1); err != nil {
		t.Fatalf("VoteTrack() error = %v", err)
	}
	if depth := c.Snapshot().QueueDepth; depth != 2 {
		t.Fatalf("QueueDepth = %d, want 2", depth)
	}

	tr.Conn(0).Drop()
	waitFor(t, "reconnect and flush", func() bool {
		return c.Snapshot().IsConnected && tr.DialCount() == 2 &&
			len(tr.Conn(1).Writes()) == 2
	})

	writes := tr.Conn(1).Writes()
	if !strings.Contains(string(writes[0].Payload), `"t1"`) ||
		!strings.Contains(string(writes[1].Payload), `"t2"`) {
		t.Errorf("failed writes flushed out of order: %s then %s",
			writes[0].Payload, writes[1].Payload)
	}
}

func TestInboundEnvelopeDelivery(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	rec := &tagRecorder{}
	c.Subscribe(protocol.EventTrackAdded, rec.record)

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	env, err := protocol.NewEnvelope(protocol.EventTrackAdded,
		&protocol.TrackAdded{Track: protocol.Track{ID: "t9"}}, "user-3")
	if err != nil {
		t.Fatal(err)
	}
	tr.Conn(0).Push(env)

	waitFor(t, "delivery", func() bool { return rec.count(protocol.EventTrackAdded) == 1 })
	last := c.LastEnvelope()
	if last == nil || last.Type != protocol.EventTrackAdded {
		t.Errorf("LastEnvelope() = %+v", last)
	}
}

func TestConnectWithoutHive(t *testing.T) {
	tr := &fakeTransport{}
	cfg := fastConfig(tr)
	cfg.HiveID = ""
	c := New(cfg)
	defer c.Close()

	c.Connect()
	time.Sleep(10 * time.Millisecond)

	if tr.DialCount() != 0 {
		t.Error("Connect dialed without a hive id")
	}
	if c.Snapshot().LastError == "" {
		t.Error("missing hive id not surfaced through LastError")
	}
}
