// Package client implements the FocusHive real-time sync client: the
// engine that keeps local state consistent with a server-pushed event
// stream over a persistent bidirectional connection.
//
// # Architecture
//
// A Client composes three parts:
//
//   - Manager: owns the transport handle and the connection state
//     machine, drives backoff on failure, and is the only component
//     that mutates connection state.
//   - Queue: the ordered buffer of actions issued while offline,
//     flushed exactly once per transition into Connected.
//   - Dispatcher: routes inbound envelopes to subscribers by type tag,
//     with catch-all subscribers and per-callback panic isolation.
//
// # Connection Lifecycle
//
//	Disconnected ──Connect──────────> Connecting
//	Connecting ───handshake ok──────> Connected
//	Connecting ───handshake fail────> Failed
//	Connected ────transport drop────> Reconnecting (retries remain)
//	Connected ────transport drop────> Failed       (budget spent)
//	Reconnecting ─handshake ok──────> Connected
//	Reconnecting ─retries exhausted─> Failed
//	Failed ───────Connect───────────> Connecting
//	any ──────────Disconnect────────> Disconnected
//
// Failed is terminal only once the retry budget is exhausted; at that
// point automatic retries stop and the caller must Reconnect
// explicitly. The attempt counter resets to zero on every successful
// handshake.
//
// # Usage
//
//	c := client.New(client.DefaultConfig().
//	    WithEndpoint("ws://localhost:8080").
//	    WithHive("hive-1"))
//	defer c.Close()
//
//	sub := c.Subscribe(protocol.EventTrackAdded, func(env *protocol.Envelope) {
//	    // react to the event
//	})
//	defer sub.Unsubscribe()
//
//	c.Connect()
//	c.AddToQueue(protocol.Track{ID: "t1", Title: "Focus"})
//
// Sends issued while disconnected are buffered, not lost: the queue is
// flushed in FIFO order as soon as a connection is established.
//
// # Concurrency
//
// All exported methods are safe for concurrent use. Lifecycle
// callbacks and subscribers run synchronously on the read-loop
// goroutine, so inbound envelopes are observed in delivery order with
// no concurrent processing of two envelopes.
package client
