package identity

import (
	"context"
	"sync"

	"github.com/hitoshi/qredentials/internal/model"
)

// Broker はClientKeyごとにセッション状態を配信する。
type Broker interface {
	// Publish は指定キーの購読者全員に状態を配信する。
	Publish(ctx context.Context, key string, state model.SessionState) error
	// Subscribe は指定キーの購読を開始する。
	// 返したcancelを呼ぶと購読を終了し、チャネルは閉じられる。
	Subscribe(ctx context.Context, key string) (<-chan model.SessionState, func(), error)
}

// offerLatest は容量1のチャネルへ、未読の古い値を捨てて最新値を書き込む。
// 書き込み側が1つであることを前提とする。
func offerLatest(ch chan model.SessionState, st model.SessionState) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}

// MemoryBroker は単一プロセス内で配信するBroker。
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

type memorySub struct {
	ch chan model.SessionState
}

// NewMemoryBroker はMemoryBrokerを生成する。
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish は指定キーの購読者へ状態を配信する。ブロックしない。
func (b *MemoryBroker) Publish(_ context.Context, key string, state model.SessionState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[key] {
		offerLatest(sub.ch, state)
	}
	return nil
}

// Subscribe は指定キーの購読を開始する。
func (b *MemoryBroker) Subscribe(_ context.Context, key string) (<-chan model.SessionState, func(), error) {
	sub := &memorySub{ch: make(chan model.SessionState, 1)}

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*memorySub]struct{})
	}
	b.subs[key][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], sub)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// subscriberCount はテスト用に購読者数を返す。
func (b *MemoryBroker) subscriberCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[key])
}

var _ Broker = (*MemoryBroker)(nil)
