package push

import (
	"context"
	"sync"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// LocalHub delivers to connections held by this process.
type LocalHub struct {
	mu   sync.RWMutex
	subs map[int64]map[*localSubscription]struct{}
}

var _ Hub = (*LocalHub)(nil)

// NewLocalHub creates an empty in-process hub.
func NewLocalHub() *LocalHub {
	return &LocalHub{subs: make(map[int64]map[*localSubscription]struct{})}
}

type localSubscription struct {
	hub    *LocalHub
	userID int64
	events chan models.PushEvent
	once   sync.Once
}

func (h *LocalHub) Subscribe(_ context.Context, userID int64) (Subscription, error) {
	sub := &localSubscription{
		hub:    h,
		userID: userID,
		events: make(chan models.PushEvent, BufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*localSubscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub, nil
}

func (h *LocalHub) Publish(_ context.Context, userID int64, ev models.PushEvent) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for sub := range h.subs[userID] {
		select {
		case sub.events <- ev:
			delivered = true
		default:
		}
	}
	return delivered, nil
}

// Connected reports whether userID has at least one live connection.
func (h *LocalHub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID]) > 0
}

func (s *localSubscription) Events() <-chan models.PushEvent {
	return s.events
}

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.userID], s)
		if len(s.hub.subs[s.userID]) == 0 {
			delete(s.hub.subs, s.userID)
		}
		close(s.events)
	})
	return nil
}
