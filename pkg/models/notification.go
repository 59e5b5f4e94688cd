package models

import (
	"fmt"
	"time"
)

// NotificationTimeLayout is the wire format of notification timestamps.
const NotificationTimeLayout = "2006-01-02 15:04:05"

// Notification tells a follower that new articles exist for a ticker.
// Sent flips once the message reached a live connection; Read is user-owned.
type Notification struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Read    bool      `json:"read"`
	Sent    bool      `json:"sent"`
}

// NewArticlesMessage is the fixed message sent to followers of ticker.
func NewArticlesMessage(ticker string) string {
	return fmt.Sprintf("New articles available for %s!", ticker)
}

// PushEvent is the payload delivered over a live connection.
type PushEvent struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// Event converts n to its push payload.
func (n *Notification) Event() PushEvent {
	return PushEvent{
		ID:      n.ID,
		Message: n.Message,
		Time:    n.Time.Format(NotificationTimeLayout),
	}
}
