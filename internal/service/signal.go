package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/castline"
)

var tracer = otel.Tracer("signal")

// SignalService fans aggregate change events out over redis pub/sub.
type SignalService struct {
	rdb redis.UniversalClient
}

func NewSignalService(redisClient redis.UniversalClient) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, channel string, event castline.Event) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// Subscribe streams events published on channel until ctx is done or the
// returned close function is called. Malformed payloads are dropped.
func (s *SignalService) Subscribe(ctx context.Context, channel string) (<-chan castline.Event, func() error) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	out := make(chan castline.Event)

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event castline.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, pubsub.Close
}
