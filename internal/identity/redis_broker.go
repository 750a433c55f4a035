package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/qredentials/internal/model"
)

const redisChannelPrefix = "qredentials:session-state:"

// RedisBroker はRedis Pub/Subで複数インスタンス間に配信するBroker。
type RedisBroker struct {
	client redis.UniversalClient
}

// NewRedisBroker はRedisBrokerを生成する。
func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client}
}

func channelName(key string) string {
	return redisChannelPrefix + key
}

// Publish は状態をJSONにして配信する。
func (b *RedisBroker) Publish(ctx context.Context, key string, state model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(key), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session state: %w", err)
	}
	return nil
}

// Subscribe は指定キーのチャネルを購読する。購読の確立を待ってから返す。
func (b *RedisBroker) Subscribe(ctx context.Context, key string) (<-chan model.SessionState, func(), error) {
	ps := b.client.Subscribe(ctx, channelName(key))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	out := make(chan model.SessionState, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	msgs := ps.Channel()

	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var st model.SessionState
				if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
					slog.Warn("dropping malformed session state message",
						slog.String("error", err.Error()),
					)
					continue
				}
				offerLatest(out, st)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			ps.Close()
			<-done
		})
	}
	return out, cancel, nil
}

var _ Broker = (*RedisBroker)(nil)
