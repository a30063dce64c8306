package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Broker is the single-process topic router. It assigns per-topic sequence
// numbers at publish time and fans the envelope out to every connection the
// membership tracker reports as present at delivery time. Delivery is
// at-most-once per connection, best-effort: a full outbound queue or a
// disconnect-before-delivery drops for that one connection without failing
// the publish for others.
//
// Constructed once at process start and passed explicitly to every component
// that publishes; there is no ambient global access.
type Broker struct {
	registry interfaces.ConnectionSource

	mu     sync.Mutex
	topics map[string]*topicState

	// membership and disconnector are set after construction: the tracker
	// publishes through the broker and the reaper leaves rooms through the
	// tracker, so neither can exist before the broker does. Overflow kills
	// are queued to the disconnector so a publish never re-enters room or
	// topic locks.
	membership   interfaces.MembershipView
	disconnector interfaces.Disconnector
	wireMu       sync.RWMutex

	logger *slog.Logger
}

// topicState serializes publishes per topic. Holding the lock across
// sequence assignment and fan-out is what gives every still-subscribed
// connection the same relative order for one room. There is no cross-topic
// ordering guarantee.
type topicState struct {
	mu  sync.Mutex
	seq uint64
}

// New creates a broker over the given registry. SetMembership must be called
// before the first publish to a room topic.
func New(registry interfaces.ConnectionSource, logger *slog.Logger) *Broker {
	return &Broker{
		registry: registry,
		topics:   make(map[string]*topicState),
		logger:   logger.With("component", "broker"),
	}
}

// SetMembership installs the delivery-time membership view.
func (b *Broker) SetMembership(m interfaces.MembershipView) {
	b.wireMu.Lock()
	b.membership = m
	b.wireMu.Unlock()
}

// SetDisconnector installs the slow-consumer teardown path.
func (b *Broker) SetDisconnector(d interfaces.Disconnector) {
	b.wireMu.Lock()
	b.disconnector = d
	b.wireMu.Unlock()
}

// Publish stamps and fans out one envelope. It never blocks on a slow
// consumer and always returns the assigned sequence number.
func (b *Broker) Publish(env *types.Envelope) (uint64, error) {
	if env == nil || env.Topic == "" {
		return 0, ErrInvalidEnvelope
	}

	ts := b.topic(env.Topic)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.seq++
	env.Sequence = ts.seq
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	// Mirror the sequence into the whiteboard payload before any enqueue;
	// the envelope is immutable once handed to a queue.
	if env.Whiteboard != nil {
		env.Whiteboard.Sequence = ts.seq
	}

	for _, conn := range b.recipients(env) {
		b.deliver(conn, env)
	}
	return ts.seq, nil
}

// recipients resolves the delivery set at delivery time, not publish-intent
// time: membership is re-read here so a connection that left the room while
// the publish was in flight is excluded.
func (b *Broker) recipients(env *types.Envelope) []interfaces.Connection {
	// User-direct topic: every live connection of the addressed user.
	if types.IsUserTopic(env.Topic) {
		return b.registry.ConnectionsForUser(types.UserFromTopic(env.Topic))
	}

	b.wireMu.RLock()
	membership := b.membership
	b.wireMu.RUnlock()
	if membership == nil {
		return nil
	}

	connIDs := membership.ParticipantConnections(env.Topic)
	conns := make([]interfaces.Connection, 0, len(connIDs))
	for _, id := range connIDs {
		conn, ok := b.registry.Get(id)
		if !ok {
			continue
		}
		// Pairwise-direct: restrict the room fan-out to the target user.
		if env.TargetUserID != "" && conn.Principal().UserID != env.TargetUserID {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// deliver enqueues for one connection, applying the slow-consumer policy on
// overflow. Failures are isolated per connection and only logged.
func (b *Broker) deliver(conn interfaces.Connection, env *types.Envelope) {
	err := conn.Enqueue(env)
	if err == nil {
		return
	}

	switch err {
	case types.ErrQueueOverflow:
		b.logger.Warn("slow consumer, forcing disconnect",
			"conn_id", conn.ID(), "user", conn.Principal().UserID, "topic", env.Topic)
		b.wireMu.RLock()
		d := b.disconnector
		b.wireMu.RUnlock()
		if d != nil {
			d.Signal(conn.ID())
		} else {
			_ = conn.Close()
		}
	default:
		b.logger.Debug("delivery dropped",
			"conn_id", conn.ID(), "topic", env.Topic, "kind", env.Kind, "error", err)
	}
}

// Sequence returns the current sequence counter for a topic without
// advancing it. Counters never reset for the process lifetime.
func (b *Broker) Sequence(topic string) uint64 {
	b.mu.Lock()
	ts, ok := b.topics[topic]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.seq
}

func (b *Broker) topic(name string) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts, ok := b.topics[name]
	if !ok {
		ts = &topicState{}
		b.topics[name] = ts
	}
	return ts
}
