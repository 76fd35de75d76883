package hub

import (
	"sync"
	"sync/atomic"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// Per-recipient queue bounds.
const (
	// controlQueueDepth is the hard bound for never-drop control records.
	// Breaching it marks the recipient unhealthy and it is evicted.
	controlQueueDepth = 1024

	// eventQueueDepth is the soft bound for chat/roster/file notifications.
	// Overflow drops the oldest queued item of the class.
	eventQueueDepth = 256

	// eventQueueBytes caps the aggregate payload held in the event class;
	// whichever of the two bounds trips first sheds the oldest item.
	eventQueueBytes = 8 << 20
)

// sendQueue holds one participant's outbound reliable-channel queues, one
// per overflow class: control (never drop), events (drop-oldest), and a
// single latest-wins slot for screen frames.
type sendQueue struct {
	control chan protocol.Message
	events  chan protocol.Message

	evMu    sync.Mutex // serializes drop-oldest so it stays atomic across producers
	evBytes atomic.Int64

	screenMu    sync.Mutex
	screenFrame *protocol.Message
	screenReady chan struct{}

	droppedEvents atomic.Uint64
	droppedScreen atomic.Uint64
}

func newSendQueue() *sendQueue {
	return &sendQueue{
		control:     make(chan protocol.Message, controlQueueDepth),
		events:      make(chan protocol.Message, eventQueueDepth),
		screenReady: make(chan struct{}, 1),
	}
}

// pushControl enqueues a must-deliver record. false means the hard bound is
// breached and the recipient must be treated as unhealthy.
func (q *sendQueue) pushControl(msg protocol.Message) bool {
	select {
	case q.control <- msg:
		return true
	default:
		return false
	}
}

// pushEvent enqueues a droppable notification, evicting the oldest queued
// event when either the item count or the aggregate byte bound is full.
func (q *sendQueue) pushEvent(msg protocol.Message) {
	cost := int64(eventCost(msg))

	q.evMu.Lock()
	defer q.evMu.Unlock()

	for {
		if q.evBytes.Load()+cost <= eventQueueBytes {
			select {
			case q.events <- msg:
				q.evBytes.Add(cost)
				return
			default:
			}
		}
		select {
		case old := <-q.events:
			q.evBytes.Add(-int64(eventCost(old)))
			q.droppedEvents.Add(1)
		default:
			// Nothing left to shed; a single record larger than the byte
			// bound is admitted rather than lost.
			q.events <- msg
			q.evBytes.Add(cost)
			return
		}
	}
}

// noteEventDrained settles the byte accounting when the writer takes an
// event off the queue.
func (q *sendQueue) noteEventDrained(msg protocol.Message) {
	q.evBytes.Add(-int64(eventCost(msg)))
}

// eventCost approximates a record's framed size: variable payload fields
// plus a flat allowance for the envelope.
func eventCost(msg protocol.Message) int {
	return 256 + len(msg.Text) + len(msg.FrameData) + len(msg.Message) + len(msg.Filename)
}

// pushScreen replaces any pending screen frame with the newest one.
func (q *sendQueue) pushScreen(msg protocol.Message) {
	q.screenMu.Lock()
	if q.screenFrame != nil {
		q.droppedScreen.Add(1)
	}
	q.screenFrame = &msg
	q.screenMu.Unlock()

	select {
	case q.screenReady <- struct{}{}:
	default:
	}
}

// takeScreen claims the pending screen frame, if any.
func (q *sendQueue) takeScreen() (protocol.Message, bool) {
	q.screenMu.Lock()
	defer q.screenMu.Unlock()

	if q.screenFrame == nil {
		return protocol.Message{}, false
	}
	msg := *q.screenFrame
	q.screenFrame = nil
	return msg, true
}

// dropped returns the accumulated overflow counts.
func (q *sendQueue) dropped() (events, screens uint64) {
	return q.droppedEvents.Load(), q.droppedScreen.Load()
}
