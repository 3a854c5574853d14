package sync

import (
	stdsync "sync"
)

// AlertFunc is notified when a request's signed count reaches a new high.
type AlertFunc func(requestID string, signedCount int)

// View is the dashboard's merged picture of a sender's requests. Updates
// arrive from both the websocket and the polling fallback in no particular
// order; the view keeps whichever write is newest by the aggregate's
// updated-at stamp, with the version breaking exact ties.
type View struct {
	mu        stdsync.Mutex
	requests  map[string]Update
	highWater map[string]int
	onAlert   AlertFunc
}

// NewView creates an empty view. onAlert may be nil.
func NewView(onAlert AlertFunc) *View {
	return &View{
		requests:  make(map[string]Update),
		highWater: make(map[string]int),
		onAlert:   onAlert,
	}
}

// Apply merges one update and reports whether it changed the view. Signed
// count alerts fire at most once per high-water mark, no matter how many
// duplicate updates arrive.
func (v *View) Apply(update Update) bool {
	if update.RequestID == "" {
		return false
	}

	v.mu.Lock()
	existing, ok := v.requests[update.RequestID]
	if ok && !newerThan(update, existing) {
		v.mu.Unlock()
		return false
	}
	v.requests[update.RequestID] = update

	var alert AlertFunc
	if update.SignedCount > v.highWater[update.RequestID] {
		v.highWater[update.RequestID] = update.SignedCount
		alert = v.onAlert
	}
	v.mu.Unlock()

	if alert != nil {
		alert(update.RequestID, update.SignedCount)
	}
	return true
}

// Get returns the current snapshot for one request.
func (v *View) Get(requestID string) (Update, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	update, ok := v.requests[requestID]
	return update, ok
}

// Snapshot returns every tracked request snapshot.
func (v *View) Snapshot() []Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	updates := make([]Update, 0, len(v.requests))
	for _, update := range v.requests {
		updates = append(updates, update)
	}
	return updates
}

func newerThan(candidate, existing Update) bool {
	if candidate.UpdatedAt.After(existing.UpdatedAt) {
		return true
	}
	if existing.UpdatedAt.After(candidate.UpdatedAt) {
		return false
	}
	return candidate.Version > existing.Version
}
