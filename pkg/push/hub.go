// Package push delivers notification events to users holding a live connection.
package push

import (
	"context"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// BufferSize is the per-connection event buffer. A connection that falls this
// far behind misses live events; they stay unsent and arrive on catch-up.
const BufferSize = 32

// Hub routes events to live connections keyed by user id.
type Hub interface {
	// Subscribe registers a live connection for userID. The subscription is
	// active when Subscribe returns.
	Subscribe(ctx context.Context, userID int64) (Subscription, error)
	// Publish offers ev to every live connection of userID. It reports whether
	// at least one connection accepted it.
	Publish(ctx context.Context, userID int64, ev models.PushEvent) (bool, error)
}

// Subscription is one live connection.
type Subscription interface {
	Events() <-chan models.PushEvent
	Close() error
}
