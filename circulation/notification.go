package circulation

import (
	"context"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// NotificationKind identifies the template the notification collaborator
// should render. The engine never sends anything itself.
type NotificationKind string

const (
	NotificationLoanApproved        NotificationKind = "loan_approved"
	NotificationPickupReady         NotificationKind = "pickup_ready"
	NotificationLoanRejected        NotificationKind = "loan_rejected"
	NotificationReservationPromoted NotificationKind = "reservation_promoted"
	NotificationBookAvailableAgain  NotificationKind = "book_available_again"
)

// Notification is one deferred message for the notification collaborator.
// SubjectID is the loan or reservation (or book, for audience-wide kinds)
// the message is about. UserID is uuid.Nil for audience-wide kinds.
// Context carries snapshot data captured before rows are deleted, e.g. the
// book title for a rejection notice.
type Notification struct {
	Kind      NotificationKind
	SubjectID uuid.UUID
	UserID    uuid.UUID
	Context   map[string]string
}

var notificationJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// PayloadJSON serializes the notification for delivery or logging.
func (n Notification) PayloadJSON() ([]byte, error) {
	return notificationJSON.Marshal(struct {
		Kind      string            `json:"kind"`
		SubjectID string            `json:"subject_id"`
		UserID    string            `json:"user_id,omitempty"`
		Context   map[string]string `json:"context,omitempty"`
	}{
		Kind:      string(n.Kind),
		SubjectID: n.SubjectID.String(),
		UserID:    userIDOrEmpty(n.UserID),
		Context:   n.Context,
	})
}

func userIDOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// Notifier is the boundary to the notification collaborator. Notify is
// fire-and-forget: the engine calls it strictly after commit and logs,
// never propagates, its errors.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Outbox buffers notifications produced inside a transaction. A user must
// never be notified of a state change that is later rolled back, so the
// engine drains the outbox only after a successful commit.
type Outbox struct {
	pending []Notification
}

// Add buffers one notification.
func (o *Outbox) Add(notification Notification) {
	o.pending = append(o.pending, notification)
}

// Drain returns the buffered notifications and empties the outbox.
func (o *Outbox) Drain() []Notification {
	drained := o.pending
	o.pending = nil

	return drained
}

// Len returns the number of buffered notifications.
func (o *Outbox) Len() int {
	return len(o.pending)
}
