// Package protocol defines the wire contract for the FocusHive
// real-time channel.
//
// Every message exchanged over the channel, in either direction, is an
// Envelope: a discriminated type tag, an opaque JSON payload, a
// timestamp, and the originator of the message. Envelopes are encoded
// as JSON text frames so the contract stays transport-agnostic; the
// production client carries them over a WebSocket, but nothing in this
// package assumes one.
//
// # Message Flow
//
//	Client                              Server
//	  │                                   │
//	  │──── dial ?hive=<id> ─────────────>│
//	  │<──── connect (Welcome) ───────────│
//	  │                                   │
//	  │──── join_hive / add_to_queue ────>│
//	  │<──── track_added / queue_updated ─│
//	  │<──── user_joined / user_left ─────│
//
// # Event Tags
//
// Inbound application events: track_added, track_voted, queue_updated,
// track_changed, user_joined, user_left. Outbound actions: join_hive,
// leave_hive, add_to_queue, vote_track, playback_update.
//
// Connection-lifecycle pseudo-events (connect_error, reconnect, and
// friends) are emitted locally by the client so subscribers can observe
// transport health; apart from the server's initial "connect" welcome
// they never travel on the wire.
//
// # Forward Compatibility
//
// Unknown type tags are not an error. DecodePayload returns an
// UnknownPayload carrying the raw bytes so new server-side event kinds
// flow through older clients untouched.
package protocol
