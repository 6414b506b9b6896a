package broadcast

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"poll-service/config"
	"poll-service/pkg/resilience"
	"poll-service/pkg/zap"
)

// Publisher fans one logical event out to every client in a room, across all
// instances. Implementations must not fail the caller when the shared bus is
// down; they degrade to local-only delivery instead.
type Publisher interface {
	Publish(ctx context.Context, room string, event interface{})
}

// LocalDeliverFunc hands a marshaled event to the sockets of one room on this
// instance.
type LocalDeliverFunc func(room string, payload []byte)

// channel is the single redis channel every instance publishes to and
// subscribes on. Global subscription trades wasted fan-out for zero
// subscription churn on join/leave.
const channel = "poll-service:events"

type envelope struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBus is the cross-instance fan-out. Self-originated messages come back
// through the subscription like everyone else's, keeping delivery uniform.
type RedisBus struct {
	client *redis.Client
	exec   *resilience.Executor
	local  LocalDeliverFunc
	log    zap.Logger
}

func NewRedisBus(cfg config.RedisConfig, exec *resilience.Executor, log zap.Logger) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBus{
		client: client,
		exec:   exec,
		log:    log,
	}
}

// SetLocalDelivery binds the hub's local emit. Must be called before Run.
func (b *RedisBus) SetLocalDelivery(local LocalDeliverFunc) {
	b.local = local
}

// Publish marshals event into a room-scoped envelope and pushes it onto the
// bus. If the bus is unreachable the event is delivered to local sockets only
// and the degradation is logged as a warning; the acting client's operation
// has already succeeded and is not failed retroactively.
func (b *RedisBus) Publish(ctx context.Context, room string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Errorf("broadcast: marshal event for room %s: %v", room, err)
		return
	}

	frame, err := json.Marshal(envelope{Room: room, Payload: payload})
	if err != nil {
		b.log.Errorf("broadcast: marshal envelope for room %s: %v", room, err)
		return
	}

	err = b.exec.Do(ctx, func(ctx context.Context) error {
		return b.client.Publish(ctx, channel, frame).Err()
	})
	if err != nil {
		b.log.Warnf("broadcast: bus unavailable, delivering room %s locally only: %v", room, err)
		if b.local != nil {
			b.local(room, payload)
		}
	}
}

// Run subscribes to the shared channel and pumps incoming envelopes to local
// sockets until ctx is cancelled. go-redis re-establishes the subscription
// after connection loss on its own.
func (b *RedisBus) Run(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Errorf("broadcast: bad envelope: %v", err)
				continue
			}
			if b.local != nil {
				b.local(env.Room, env.Payload)
			}
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
