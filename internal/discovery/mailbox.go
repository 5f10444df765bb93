package discovery

// Mailbox holds at most one undelivered DeviceSet. Publishing replaces any set
// the consumer has not taken yet, so the consumer always sees the latest view.
// It supports a single publisher.
type Mailbox struct {
	ch chan DeviceSet
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan DeviceSet, 1)}
}

// Publish stores set, discarding an older unconsumed one. It never blocks.
func (m *Mailbox) Publish(set DeviceSet) {
	select {
	case <-m.ch:
	default:
	}
	m.ch <- set
}

// C returns the channel the consumer receives sets from.
func (m *Mailbox) C() <-chan DeviceSet {
	return m.ch
}
