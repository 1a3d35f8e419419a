package client

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/focushive/hivesync/pkg/protocol"
)

func TestSetHiveSwitchesConnection(t *testing.T) {
	tr := &fakeTransport{}
	var disconnects atomic.Int32
	cfg := fastConfig(tr)
	cfg.OnDisconnect = func(string) { disconnects.Add(1) }
	c := New(cfg)
	defer c.Close()

	c.Connect()
	waitFor(t, "connected to hive-1", func() bool { return c.Snapshot().IsConnected })

	c.SetHive("hive-2")
	waitFor(t, "connected to hive-2", func() bool {
		return c.Snapshot().IsConnected && tr.DialCount() == 2
	})

	if !tr.Conn(0).Closed() {
		t.Error("old connection still open after hive switch")
	}
	if got := disconnects.Load(); got != 1 {
		t.Errorf("OnDisconnect fired %d times, want exactly 1", got)
	}
	if !strings.Contains(tr.LastURL(), "hive=hive-2") {
		t.Errorf("new dial URL = %q, want hive-2 scoping parameter", tr.LastURL())
	}
	if c.Hive() != "hive-2" {
		t.Errorf("Hive() = %q, want hive-2", c.Hive())
	}
}

func TestSetHiveSameIDNoOp(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	c.SetHive("hive-1")
	time.Sleep(20 * time.Millisecond)

	if n := tr.DialCount(); n != 1 {
		t.Errorf("DialCount() = %d, want 1", n)
	}
	if !c.Snapshot().IsConnected {
		t.Error("SetHive with the same id dropped the connection")
	}
}

func TestSetHiveWhileDisconnectedStaysDisconnected(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.SetHive("hive-2")
	time.Sleep(20 * time.Millisecond)

	if tr.DialCount() != 0 {
		t.Error("SetHive dialed while client was never connected")
	}
	if c.Hive() != "hive-2" {
		t.Errorf("Hive() = %q, want hive-2", c.Hive())
	}
}

func TestCloseReleasesTransport(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	c.Close()

	if !tr.Conn(0).Closed() {
		t.Error("transport connection outlived the client")
	}
	if err := c.Send(protocol.ActionVoteTrack, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if state := c.Snapshot().State; state != Disconnected {
		t.Errorf("State after Close = %s, want disconnected", state)
	}
}

func TestCloseDiscardsQueuedActions(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))

	c.VoteTrack("t1", 1)
	c.VoteTrack("t2", -1)
	if depth := c.Snapshot().QueueDepth; depth != 2 {
		t.Fatalf("QueueDepth = %d, want 2", depth)
	}

	c.Close()
	if depth := c.Snapshot().QueueDepth; depth != 0 {
		t.Errorf("QueueDepth after Close = %d, want 0", depth)
	}
}

func TestSnapshotDerivations(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	snap := c.Snapshot()
	if !snap.CanReconnect {
		t.Error("fresh disconnected client should allow reconnect")
	}
	if snap.IsHealthy {
		t.Error("disconnected client cannot be healthy")
	}

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	snap = c.Snapshot()
	if snap.CanReconnect {
		t.Error("CanReconnect = true while connected")
	}
	if !snap.IsHealthy {
		t.Error("IsHealthy = false for a connected client with no error")
	}
}

func TestConvenienceWrappers(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	c.Connect()
	waitFor(t, "connected", func() bool { return c.Snapshot().IsConnected })

	if err := c.JoinHive("hive-1"); err != nil {
		t.Fatalf("JoinHive() error = %v", err)
	}
	if err := c.PlaybackUpdate("t1", 42000, true); err != nil {
		t.Fatalf("PlaybackUpdate() error = %v", err)
	}

	conn := tr.Conn(0)
	waitFor(t, "both sends", func() bool { return len(conn.Writes()) == 2 })

	writes := conn.Writes()
	if writes[0].Type != protocol.ActionJoinHive {
		t.Errorf("first send = %q, want %q", writes[0].Type, protocol.ActionJoinHive)
	}
	if writes[1].Type != protocol.ActionPlaybackUpdate {
		t.Errorf("second send = %q, want %q", writes[1].Type, protocol.ActionPlaybackUpdate)
	}
	if !strings.Contains(string(writes[1].Payload), `"positionMs":42000`) {
		t.Errorf("playback payload = %s", writes[1].Payload)
	}
}

func TestSendUnmarshalablePayload(t *testing.T) {
	tr := &fakeTransport{}
	c := New(fastConfig(tr))
	defer c.Close()

	if err := c.Send(protocol.ActionAddToQueue, func() {}); err == nil {
		t.Error("Send() with unmarshalable payload should fail synchronously")
	}
}

func TestNewNilConfig(t *testing.T) {
	c := New(nil)
	defer c.Close()

	if c.cfg.Path != "/sync/ws" {
		t.Errorf("Path = %q, want default", c.cfg.Path)
	}
	if c.cfg.Policy.MaxAttempts != 5 {
		t.Errorf("Policy = %+v, want defaults", c.cfg.Policy)
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	tr := &fakeTransport{}
	cfg := fastConfig(tr)
	c := New(cfg)
	defer c.Close()

	// Mutating the caller's config must not affect the live client.
	cfg.HiveID = "hive-other"
	if c.Hive() != "hive-1" {
		t.Errorf("Hive() = %q, caller mutation leaked in", c.Hive())
	}
}
