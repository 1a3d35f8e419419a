package hivesim

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focushive/hivesync/pkg/protocol"
)

// member is one connected client.
type member struct {
	id      string
	session string

	writeMu sync.Mutex
	ws      *websocket.Conn
}

func (m *member) send(env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return m.ws.WriteMessage(websocket.TextMessage, data)
}

func (m *member) sendWelcome(sessionID, hiveID string) error {
	env, err := protocol.NewEnvelope(protocol.LifecycleConnect, &protocol.Welcome{
		SessionID:  sessionID,
		HiveID:     hiveID,
		ServerTime: time.Now().UTC(),
	}, protocol.OriginatorSystem)
	if err != nil {
		return err
	}
	return m.send(env)
}

// hive holds one room's members and its collaborative queue. Votes
// re-rank the queue; every mutation is broadcast to all members.
type hive struct {
	id     string
	logger *slog.Logger

	mu      sync.Mutex
	members map[string]*member
	queue   []protocol.QueueEntry
}

func newHive(id string, logger *slog.Logger) *hive {
	return &hive{id: id, logger: logger, members: make(map[string]*member)}
}

func (h *hive) register(m *member) {
	h.mu.Lock()
	h.members[m.id] = m
	count := len(h.members)
	h.mu.Unlock()

	h.broadcast(protocol.EventUserJoined,
		&protocol.UserJoined{UserID: m.id, Members: count}, protocol.OriginatorSystem)
}

func (h *hive) unregister(m *member) {
	h.mu.Lock()
	if _, ok := h.members[m.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.members, m.id)
	count := len(h.members)
	h.mu.Unlock()

	h.broadcast(protocol.EventUserLeft,
		&protocol.UserLeft{UserID: m.id, Members: count}, protocol.OriginatorSystem)
}

func (h *hive) memberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// apply executes one inbound action and broadcasts the resulting
// events. Unknown action tags are logged and ignored; the client side
// is responsible for forward compatibility, the simulator only speaks
// the contract it knows.
func (h *hive) apply(m *member, env *protocol.Envelope) {
	payload, err := protocol.DecodePayload(env)
	if err != nil {
		h.logger.Warn("malformed payload", "type", env.Type, "error", err)
		return
	}

	switch p := payload.(type) {
	case *protocol.AddToQueue:
		h.addTrack(m, p.Track)

	case *protocol.VoteTrack:
		h.voteTrack(m, p.TrackID, p.Vote)

	case *protocol.PlaybackUpdate:
		h.broadcast(protocol.EventTrackChanged, &protocol.TrackChanged{
			Track:      protocol.Track{ID: p.TrackID},
			PositionMS: p.PositionMS,
			Playing:    p.Playing,
		}, m.id)

	case *protocol.JoinHive, *protocol.LeaveHive:
		// Membership is driven by the connection itself; the explicit
		// actions only matter on servers multiplexing several hives
		// over one socket.

	default:
		h.logger.Debug("ignoring action", "type", env.Type, "client", m.id)
	}
}

func (h *hive) addTrack(m *member, track protocol.Track) {
	if track.AddedBy == "" {
		track.AddedBy = m.id
	}

	h.mu.Lock()
	h.queue = append(h.queue, protocol.QueueEntry{Track: track, Position: len(h.queue)})
	position := len(h.queue) - 1
	h.mu.Unlock()

	h.broadcast(protocol.EventTrackAdded,
		&protocol.TrackAdded{Track: track, Position: position}, m.id)
	h.broadcastQueue()
}

func (h *hive) voteTrack(m *member, trackID string, vote int) {
	h.mu.Lock()
	var total int
	found := false
	for i := range h.queue {
		if h.queue[i].Track.ID == trackID {
			h.queue[i].Votes += vote
			total = h.queue[i].Votes
			found = true
			break
		}
	}
	if found {
		h.rankLocked()
	}
	h.mu.Unlock()

	if !found {
		h.logger.Debug("vote for unknown track", "track", trackID, "client", m.id)
		return
	}

	h.broadcast(protocol.EventTrackVoted,
		&protocol.TrackVoted{TrackID: trackID, Vote: vote, Votes: total}, m.id)
	h.broadcastQueue()
}

// rankLocked re-sorts the queue by votes, ties kept in insertion
// order. Called with h.mu held.
func (h *hive) rankLocked() {
	sort.SliceStable(h.queue, func(i, j int) bool {
		return h.queue[i].Votes > h.queue[j].Votes
	})
	for i := range h.queue {
		h.queue[i].Position = i
	}
}

// broadcastQueue sends the recomputed queue as a server aggregate.
func (h *hive) broadcastQueue() {
	h.mu.Lock()
	entries := append([]protocol.QueueEntry(nil), h.queue...)
	h.mu.Unlock()

	h.broadcast(protocol.EventQueueUpdated,
		&protocol.QueueUpdated{Entries: entries}, protocol.OriginatorSystem)
}

func (h *hive) broadcast(typ string, payload any, originator string) {
	env, err := protocol.NewEnvelope(typ, payload, originator)
	if err != nil {
		h.logger.Error("broadcast envelope", "type", typ, "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*member, 0, len(h.members))
	for _, m := range h.members {
		targets = append(targets, m)
	}
	h.mu.Unlock()

	for _, m := range targets {
		if err := m.send(env); err != nil {
			h.logger.Warn("broadcast send failed", "client", m.id, "error", err)
		}
	}
}
