package core

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/metrics"
)

const dispatchStripes = 64

// Relay forwards broadcasts to other server instances.
type Relay interface {
	Publish(ctx context.Context, room string, msg Message) error
}

// Dispatcher fans a message out to every current member of a room, the sender included.
type Dispatcher struct {
	registry *Registry
	relay    Relay
	metrics  *metrics.Metrics
	log      *zerolog.Logger

	// stripes serialize fan-out per room so all members observe the same order.
	stripes [dispatchStripes]sync.Mutex
}

// NewDispatcher creates a dispatcher over registry. relay and m may be nil.
func NewDispatcher(registry *Registry, relay Relay, m *metrics.Metrics, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		registry: registry,
		relay:    relay,
		metrics:  m,
		log:      logger,
	}
}

// Broadcast delivers msg to the local members of room and publishes it to the relay.
// Both happen under the room's stripe, so remote instances see the room's messages
// in the same order as local members. It returns the number of local connections
// the event was queued for.
func (d *Dispatcher) Broadcast(ctx context.Context, room string, msg Message) int {
	stripe := d.stripe(room)
	stripe.Lock()
	defer stripe.Unlock()

	delivered := d.deliverLocked(room, msg)
	if d.relay != nil {
		if err := d.relay.Publish(ctx, room, msg); err != nil {
			d.log.Warn().Err(err).Str("room", room).Str("message_id", msg.ID).Msg("relay publish failed")
		}
	}
	return delivered
}

// DeliverLocal fans msg out to this process's members of room without touching the relay.
func (d *Dispatcher) DeliverLocal(room string, msg Message) int {
	stripe := d.stripe(room)
	stripe.Lock()
	defer stripe.Unlock()
	return d.deliverLocked(room, msg)
}

func (d *Dispatcher) stripe(room string) *sync.Mutex {
	return &d.stripes[xxhash.Sum64String(room)%dispatchStripes]
}

// deliverLocked must be called with the room's stripe held. Overflowing members are
// evicted before the stripe is released so no later message of the room reaches them.
func (d *Dispatcher) deliverLocked(room string, msg Message) int {
	members := d.registry.Members(room)
	if len(members) == 0 {
		d.log.Debug().Str("room", room).Str("message_id", msg.ID).Msg("broadcast to empty room")
		return 0
	}

	ev := &Event{Kind: EventNewMessage, Room: room, Message: msg}
	delivered := 0
	for _, c := range members {
		switch err := c.enqueue(ev); err {
		case nil:
			delivered++
		case errQueueFull:
			d.evict(c)
		}
	}
	d.metrics.Broadcast(delivered)
	return delivered
}

// evict drops a slow consumer so it cannot stall the room.
func (d *Dispatcher) evict(c *Connection) {
	rooms := d.registry.LeaveAll(c.ID)
	c.Kick(ReasonSlowConsumer)
	d.metrics.Evicted()
	d.metrics.SetRooms(d.registry.RoomCount())
	d.log.Warn().Str("conn_id", c.ID).Strs("rooms", rooms).Msg("evicted slow consumer")
}
