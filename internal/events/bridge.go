package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"imovelhub_backend/platform/logger"
)

// bridgeChannel is the Redis pub/sub channel the api and worker processes
// share. The worker forwards its local events onto it; the api replays
// them into its own bus so SSE clients see events the worker produced.
const bridgeChannel = "events.bridge"

// envelope is the wire format: the event name selects the decoder, the
// payload is the event's own JSON.
type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// decoders rebuilds a concrete event value from its payload. Subscribers
// type-assert value types, so decoders return values, not pointers.
var decoders = map[string]func([]byte) (Event, error){
	MessageCreated{}.EventName(): func(b []byte) (Event, error) {
		var ev MessageCreated
		err := json.Unmarshal(b, &ev)
		return ev, err
	},
	ConversationUpdated{}.EventName(): func(b []byte) (Event, error) {
		var ev ConversationUpdated
		err := json.Unmarshal(b, &ev)
		return ev, err
	},
	VisitConfirmed{}.EventName(): func(b []byte) (Event, error) {
		var ev VisitConfirmed
		err := json.Unmarshal(b, &ev)
		return ev, err
	},
	TurnAbandoned{}.EventName(): func(b []byte) (Event, error) {
		var ev TurnAbandoned
		err := json.Unmarshal(b, &ev)
		return ev, err
	},
}

// RedisBridge relays events between processes over Redis pub/sub. Each
// process uses one side only: the worker forwards, the api consumes, so
// no event ever loops back onto the bus that produced it.
type RedisBridge struct {
	rdb *redis.Client
	bus Bus
	log *logger.Logger
}

// NewRedisBridge connects to Redis and binds the bridge to the local bus.
func NewRedisBridge(redisURL string, bus Bus, log *logger.Logger) (*RedisBridge, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBridge{rdb: redis.NewClient(opt), bus: bus, log: log}, nil
}

// newRedisBridgeWithClient is for tests that bring their own client.
func newRedisBridgeWithClient(rdb *redis.Client, bus Bus, log *logger.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, bus: bus, log: log}
}

// ForwardLocal subscribes the bridge to the named local events and
// publishes each one onto the Redis channel.
func (b *RedisBridge) ForwardLocal(names ...string) {
	for _, name := range names {
		name := name
		b.bus.Subscribe(name, HandlerFunc(func(ctx context.Context, ev Event) error {
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", name, err)
			}
			body, err := json.Marshal(envelope{Name: name, Payload: payload})
			if err != nil {
				return err
			}
			return b.rdb.Publish(ctx, bridgeChannel, body).Err()
		}))
	}
}

// Run consumes the Redis channel and replays each event into the local
// bus. It blocks until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.replay(ctx, []byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) replay(ctx context.Context, body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		b.log.Error("bridge envelope decode failed", "error", err)
		return
	}
	decode, ok := decoders[env.Name]
	if !ok {
		b.log.Warn("bridge received unknown event", "event", env.Name)
		return
	}
	ev, err := decode(env.Payload)
	if err != nil {
		b.log.Error("bridge event decode failed", "event", env.Name, "error", err)
		return
	}
	b.bus.Publish(ctx, ev)
}

// BridgedEventNames lists the events the worker forwards to the api.
func BridgedEventNames() []string {
	return []string{
		MessageCreated{}.EventName(),
		ConversationUpdated{}.EventName(),
		VisitConfirmed{}.EventName(),
		TurnAbandoned{}.EventName(),
	}
}
