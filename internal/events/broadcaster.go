package events

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// Subscribe adds a new subscriber and returns its channel.
// The channel is buffered so a slow client cannot block Emit.
func (b *Bus) Subscribe() Subscriber {
	ch := make(Subscriber, 64)
	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel. Used on shutdown.
func (b *Bus) CloseAllSubscribers() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]struct{})
}

// broadcast is non-blocking: a full subscriber buffer drops the event for
// that subscriber only.
func (b *Bus) broadcast(e Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscribers)
}

// RecentEvents returns the last n events. n <= 0 or larger than the buffer
// returns everything buffered.
func (b *Bus) RecentEvents(n int) []Event {
	all := b.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
