package enums

// QueueItemState tracks a conversation's placement within a queue.
type QueueItemState string

const (
	QueueItemQueued    QueueItemState = "queued"
	QueueItemHot       QueueItemState = "hot"
	QueueItemCompleted QueueItemState = "completed"
)

func (s QueueItemState) IsValid() bool {
	switch s {
	case QueueItemQueued, QueueItemHot, QueueItemCompleted:
		return true
	}
	return false
}

// IsActive reports whether the item still occupies the queue.
func (s QueueItemState) IsActive() bool {
	return s == QueueItemQueued || s == QueueItemHot
}
