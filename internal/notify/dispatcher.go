package notify

import (
	"log/slog"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Dispatcher delivers asynchronous, user-addressed events. There is no
// store-and-forward queue here: a notification for a user with zero live
// connections is dropped, and the client fetches missed notifications from
// the external store on next load.
type Dispatcher struct {
	publisher interfaces.Publisher
	registry  interfaces.ConnectionSource
	logger    *slog.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(publisher interfaces.Publisher, registry interfaces.ConnectionSource, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		registry:  registry,
		logger:    logger.With("component", "notify"),
	}
}

// Notify sends a notification to every live connection of a user. Returns
// false when the user has no live connection; the message is not queued.
func (d *Dispatcher) Notify(userID string, msg *types.NotificationMessage) (bool, error) {
	if !types.IsValidUserID(userID) {
		return false, types.ErrInvalidUserID
	}
	if msg.Severity == "" {
		msg.Severity = types.SeverityInfo
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if len(d.registry.ConnectionsForUser(userID)) == 0 {
		d.logger.Debug("notification dropped, user offline", "user", userID, "title", msg.Title)
		return false, nil
	}

	_, err := d.publisher.Publish(&types.Envelope{
		Kind:         types.KindNotification,
		Topic:        types.UserTopic(userID),
		TargetUserID: userID,
		Notification: msg,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
