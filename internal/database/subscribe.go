package database

import (
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
)

// Collection names used in status change events.
const (
	CollectionMessages       = "messages"
	CollectionThreadMessages = "thread_messages"
	CollectionUploads        = "uploads"
)

// StatusChange describes one committed delivery state change.
type StatusChange struct {
	Collection  string               `json:"collection"`
	ID          string               `json:"id"`
	RoomID      string               `json:"rid,omitempty"`
	ThreadID    string               `json:"tmid,omitempty"`
	Status      models.MessageStatus `json:"-"`
	StatusName  string               `json:"status,omitempty"`
	UploadError bool                 `json:"error,omitempty"`
	At          time.Time            `json:"at"`
}

// Subscribe registers a listener for committed status changes. Slow
// listeners miss events rather than block writers. The returned function
// unregisters the listener and closes its channel.
func (d *Database) Subscribe() (<-chan StatusChange, func()) {
	ch := make(chan StatusChange, constants.DefaultStatusSubscriberBuffer)

	d.subMu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subscribers[id] = ch
	d.subMu.Unlock()

	cancel := func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if existing, ok := d.subscribers[id]; ok {
			delete(d.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (d *Database) publish(changes []StatusChange) {
	if len(changes) == 0 {
		return
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	for _, change := range changes {
		if change.Collection != CollectionUploads {
			change.StatusName = change.Status.String()
		}
		for id, ch := range d.subscribers {
			select {
			case ch <- change:
			default:
				d.logger.WithFields(logrus.Fields{
					"subscriber": id,
					"message_id": change.ID,
				}).Warn("Dropping status change for slow subscriber")
			}
		}
	}
}
