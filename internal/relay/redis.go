// Package relay carries room broadcasts between server processes over Redis pub/sub.
// Room membership stays local to each process; only messages cross the wire.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
)

// DefaultChannelPrefix namespaces room channels when none is configured.
const DefaultChannelPrefix = "roomcast:room:"

// Envelope is the payload published for one broadcast.
type Envelope struct {
	Origin  string        `json:"origin"`
	RoomKey string        `json:"roomKey"`
	Message proto.Message `json:"message"`
}

// DeliverFunc hands a relayed message to this process's room members.
type DeliverFunc func(room string, msg core.Message) int

// Redis publishes local broadcasts and delivers those of other processes.
type Redis struct {
	client *redis.Client
	prefix string
	origin string
	log    *zerolog.Logger
}

// NewRedis wraps an existing client. Each instance gets its own origin id.
func NewRedis(client *redis.Client, prefix string, logger *zerolog.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Redis{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		log:    logger,
	}
}

// Connect dials addr and verifies the server answers.
func Connect(ctx context.Context, addr, prefix string, logger *zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedis(client, prefix, logger), nil
}

// Origin identifies this process in published envelopes.
func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) channel(room string) string {
	return r.prefix + room
}

// Publish implements core.Relay.
func (r *Redis) Publish(ctx context.Context, room string, msg core.Message) error {
	payload, err := r.encode(room, msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(room), payload).Err()
}

// Run delivers envelopes from other processes until ctx is done.
func (r *Redis) Run(ctx context.Context, deliver DeliverFunc) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", r.prefix, err)
	}
	r.log.Info().Str("pattern", r.prefix+"*").Str("origin", r.origin).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(m.Channel, m.Payload, deliver)
		}
	}
}

// handle reports whether the payload was delivered locally.
func (r *Redis) handle(channel, payload string, deliver DeliverFunc) bool {
	env, err := decode(payload)
	if err != nil {
		r.log.Warn().Err(err).Str("channel", channel).Msg("dropped relay payload")
		return false
	}
	if env.Origin == r.origin {
		return false
	}
	if room := strings.TrimPrefix(channel, r.prefix); room != env.RoomKey {
		r.log.Warn().Str("channel", channel).Str("room", env.RoomKey).Msg("relay envelope on foreign channel")
		return false
	}

	n := deliver(env.RoomKey, env.Message.ToCore())
	r.log.Debug().
		Str("room", env.RoomKey).
		Str("message_id", env.Message.ID).
		Str("origin", env.Origin).
		Int("delivered", n).
		Msg("relayed message delivered")
	return true
}

// Close releases the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) encode(room string, msg core.Message) ([]byte, error) {
	return json.Marshal(Envelope{Origin: r.origin, RoomKey: room, Message: proto.FromCore(msg)})
}

func decode(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	if env.Origin == "" || env.RoomKey == "" || env.Message.ID == "" {
		return Envelope{}, errors.New("incomplete envelope")
	}
	return env, nil
}
