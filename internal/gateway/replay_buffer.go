package gateway

import "github.com/pierrenik/signalauto/internal/ringbuf"

type replayEntry struct {
	Seq   int64
	Asset string
	Data  []byte // encoded envelope
}

// ReplayBuffer keeps the most recent feed envelopes so a reconnecting
// client can resume from the last seq it saw.
type ReplayBuffer struct {
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push records an envelope. data is copied.
func (rb *ReplayBuffer) Push(seq int64, asset string, data []byte) {
	rb.ring.Push(replayEntry{Seq: seq, Asset: asset, Data: append([]byte(nil), data...)})
}

// Since returns the retained envelopes with a seq above seq, oldest first.
// gap is true when some of the envelopes the client missed were already
// evicted.
func (rb *ReplayBuffer) Since(seq int64) (entries []replayEntry, gap bool) {
	snap := rb.ring.Snapshot() // newest first
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Seq > seq {
			entries = append(entries, snap[i])
		}
	}
	if len(entries) > 0 && entries[0].Seq > seq+1 && rb.ring.Evicted() > 0 {
		gap = true
	}
	return entries, gap
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	return rb.ring.Len()
}
