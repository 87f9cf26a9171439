package mqtt

import "log"

// queuedMsg is a serialized MQTT message held for replay after reconnection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO holding messages while disconnected.
// When full, the oldest message is overwritten.
// Not safe for concurrent use — caller must synchronize.
type outbox struct {
	msgs    []queuedMsg
	next    int // next write position
	count   int
	dropped int // messages overwritten since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{msgs: make([]queuedMsg, capacity)}
}

func (o *outbox) push(msg queuedMsg) {
	capacity := len(o.msgs)
	if capacity == 0 {
		o.dropped++
		return
	}
	if o.count == capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", capacity)
		}
		o.dropped++
	} else {
		o.count++
	}
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % capacity
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []queuedMsg {
	if o.count == 0 {
		o.dropped = 0
		return nil
	}

	capacity := len(o.msgs)
	out := make([]queuedMsg, 0, o.count)
	start := (o.next - o.count + capacity) % capacity
	for i := 0; i < o.count; i++ {
		out = append(out, o.msgs[(start+i)%capacity])
	}

	if o.dropped > 0 {
		log.Printf("mqtt: %d queued messages were dropped while disconnected", o.dropped)
	}
	o.count = 0
	o.next = 0
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
