package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound application event tags pushed by the server.
const (
	EventTrackAdded   = "track_added"   // a track joined the shared queue
	EventTrackVoted   = "track_voted"   // a vote was cast on a queued track
	EventQueueUpdated = "queue_updated" // the server re-ranked the queue
	EventTrackChanged = "track_changed" // playback moved to another track
	EventUserJoined   = "user_joined"   // a member entered the hive
	EventUserLeft     = "user_left"     // a member left the hive
)

// Connection-lifecycle pseudo-event tags. These are emitted locally by
// the client's dispatcher as the transport changes state; only
// LifecycleConnect also appears on the wire, as the server's welcome.
const (
	LifecycleConnect         = "connect"
	LifecycleDisconnect      = "disconnect"
	LifecycleConnectError    = "connect_error"
	LifecycleReconnect       = "reconnect"
	LifecycleReconnectError  = "reconnect_error"
	LifecycleReconnectFailed = "reconnect_failed"
)

// IsLifecycle reports whether tag is a connection-lifecycle
// pseudo-event rather than an application event.
func IsLifecycle(tag string) bool {
	switch tag {
	case LifecycleConnect, LifecycleDisconnect, LifecycleConnectError,
		LifecycleReconnect, LifecycleReconnectError, LifecycleReconnectFailed:
		return true
	}
	return false
}

// Track describes one entry in a hive's collaborative queue.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	DurationMS int    `json:"durationMs,omitempty"`
	AddedBy    string `json:"addedBy,omitempty"`
}

// QueueEntry is a queued track together with its voting state.
type QueueEntry struct {
	Track    Track `json:"track"`
	Votes    int   `json:"votes"`
	Position int   `json:"position"`
}

// Welcome is the payload of the server's "connect" envelope, sent once
// after connection establishment to conclude the handshake.
type Welcome struct {
	SessionID  string    `json:"sessionId"`
	HiveID     string    `json:"hiveId"`
	ServerTime time.Time `json:"serverTime"`
}

// TrackAdded is the payload of EventTrackAdded.
type TrackAdded struct {
	Track    Track `json:"track"`
	Position int   `json:"position"`
}

// TrackVoted is the payload of EventTrackVoted.
type TrackVoted struct {
	TrackID string `json:"trackId"`
	Vote    int    `json:"vote"`  // the vote just cast: +1 or -1
	Votes   int    `json:"votes"` // running total after the vote
}

// QueueUpdated is the payload of EventQueueUpdated.
type QueueUpdated struct {
	Entries []QueueEntry `json:"entries"`
}

// TrackChanged is the payload of EventTrackChanged.
type TrackChanged struct {
	Track      Track     `json:"track"`
	PositionMS int       `json:"positionMs"`
	Playing    bool      `json:"playing"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// UserJoined is the payload of EventUserJoined.
type UserJoined struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Members     int    `json:"members,omitempty"`
}

// UserLeft is the payload of EventUserLeft.
type UserLeft struct {
	UserID  string `json:"userId"`
	Members int    `json:"members,omitempty"`
}

// Disconnected is the payload the client attaches to local
// LifecycleDisconnect, LifecycleConnectError, LifecycleReconnectError
// and LifecycleReconnectFailed pseudo-events.
type Disconnected struct {
	Reason  string `json:"reason"`
	Attempt int    `json:"attempt,omitempty"`
}

// UnknownPayload preserves the body of an envelope whose tag this
// package does not recognize. Raw aliases the envelope's payload.
type UnknownPayload struct {
	Type string
	Raw  json.RawMessage
}

// DecodePayload decodes an envelope's payload into the typed struct
// for its tag. Unrecognized tags return an UnknownPayload rather than
// an error so that server-added event kinds pass through.
func DecodePayload(e *Envelope) (any, error) {
	decode := func(v any) (any, error) {
		if len(e.Payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(e.Payload, v); err != nil {
			return nil, fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
		}
		return v, nil
	}

	switch e.Type {
	case LifecycleConnect:
		return decode(&Welcome{})
	case EventTrackAdded:
		return decode(&TrackAdded{})
	case EventTrackVoted:
		return decode(&TrackVoted{})
	case EventQueueUpdated:
		return decode(&QueueUpdated{})
	case EventTrackChanged:
		return decode(&TrackChanged{})
	case EventUserJoined:
		return decode(&UserJoined{})
	case EventUserLeft:
		return decode(&UserLeft{})
	case LifecycleDisconnect, LifecycleConnectError,
		LifecycleReconnect, LifecycleReconnectError, LifecycleReconnectFailed:
		return decode(&Disconnected{})
	default:
		return &UnknownPayload{Type: e.Type, Raw: e.Payload}, nil
	}
}
