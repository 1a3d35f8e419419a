package protocol

// Outbound action tags sent by the client.
const (
	ActionJoinHive       = "join_hive"
	ActionLeaveHive      = "leave_hive"
	ActionAddToQueue     = "add_to_queue"
	ActionVoteTrack      = "vote_track"
	ActionPlaybackUpdate = "playback_update"
)

// JoinHive is the payload of ActionJoinHive.
type JoinHive struct {
	HiveID      string `json:"hiveId"`
	DisplayName string `json:"displayName,omitempty"`
}

// LeaveHive is the payload of ActionLeaveHive.
type LeaveHive struct {
	HiveID string `json:"hiveId"`
}

// AddToQueue is the payload of ActionAddToQueue.
type AddToQueue struct {
	Track Track `json:"track"`
}

// VoteTrack is the payload of ActionVoteTrack. Vote is +1 or -1.
type VoteTrack struct {
	TrackID string `json:"trackId"`
	Vote    int    `json:"vote"`
}

// PlaybackUpdate is the payload of ActionPlaybackUpdate, reporting the
// sender's playback position so the hive can stay roughly in sync.
type PlaybackUpdate struct {
	TrackID    string `json:"trackId"`
	PositionMS int    `json:"positionMs"`
	Playing    bool   `json:"playing"`
}
