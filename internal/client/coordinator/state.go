package coordinator

import (
	"sort"
	"sync"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Item is the externally visible state of one tracked upload.
type Item struct {
	VideoID  string
	Path     string
	Status   Status
	Progress int // percent, 0..100
	Error    string
}

// StateStore tracks upload items and fans out snapshots to subscribers.
// Progress is monotonic: a stale update can never move an item backwards.
type StateStore struct {
	mu      sync.Mutex
	items   map[string]*Item
	subs    map[int]chan []Item
	nextSub int
}

func NewStateStore() *StateStore {
	return &StateStore{
		items: make(map[string]*Item),
		subs:  make(map[int]chan []Item),
	}
}

// Track registers a new item in pending state.
func (s *StateStore) Track(videoID, path string) {
	s.mu.Lock()
	s.items[videoID] = &Item{VideoID: videoID, Path: path, Status: StatusPending}
	s.notifyLocked()
	s.mu.Unlock()
}

// SetStatus moves an item to the given status. Terminal states pin the
// progress: complete forces 100, everything else keeps the last value.
func (s *StateStore) SetStatus(videoID string, status Status, errMsg string) {
	s.mu.Lock()
	if item, ok := s.items[videoID]; ok {
		item.Status = status
		item.Error = errMsg
		if status == StatusComplete {
			item.Progress = 100
		}
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// SetProgress records upload progress. Values below the current one are
// dropped, so concurrent part finishers may report in any order.
func (s *StateStore) SetProgress(videoID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	if item, ok := s.items[videoID]; ok && percent > item.Progress {
		item.Progress = percent
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// Remove drops an item from the store. Canceled uploads disappear from the
// queue; failed ones stay visible so the user can retry or dismiss them.
func (s *StateStore) Remove(videoID string) {
	s.mu.Lock()
	if _, ok := s.items[videoID]; ok {
		delete(s.items, videoID)
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// Items returns a snapshot sorted by video id.
func (s *StateStore) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsUploading reports whether any tracked item is still in flight.
func (s *StateStore) IsUploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.Status == StatusPending || item.Status == StatusUploading {
			return true
		}
	}
	return false
}

// Get returns the item for videoID, if tracked.
func (s *StateStore) Get(videoID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[videoID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Subscribe returns a channel of state snapshots and a cancel function.
// Slow subscribers miss intermediate snapshots instead of blocking updates.
func (s *StateStore) Subscribe() (<-chan []Item, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan []Item, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *StateStore) snapshotLocked() []Item {
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}

func (s *StateStore) notifyLocked() {
	snapshot := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			// drop the stale snapshot, replace with the fresh one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
