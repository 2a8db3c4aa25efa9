// Package pubsub is a small in-process fan-out hub keyed by topic.
package pubsub

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Message wraps a payload with the key it was published under.
type Message[K comparable, M any] struct {
	Key     K
	Payload M
}

// Hub delivers published messages to key subscribers and to global
// subscribers. Delivery is non-blocking: a subscriber that falls
// behind its buffer loses messages rather than stalling publishers.
type Hub[K comparable, M any] struct {
	log    *zap.Logger
	buffer int

	keySubs    *xsync.MapOf[K, []chan Message[K, M]]
	globalSubs *xsync.MapOf[chan Message[K, M], struct{}]
}

type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(o *options) {
		o.buffer = n
	}
}

func NewHub[K comparable, M any](log *zap.Logger, opts ...Option) *Hub[K, M] {
	o := options{buffer: 64}
	for _, opt := range opts {
		opt(&o)
	}
	return &Hub[K, M]{
		log:        log,
		buffer:     o.buffer,
		keySubs:    xsync.NewMapOf[K, []chan Message[K, M]](),
		globalSubs: xsync.NewMapOf[chan Message[K, M], struct{}](),
	}
}

func (h *Hub[K, M]) Publish(key K, payload M) {
	msg := Message[K, M]{Key: key, Payload: payload}
	h.globalSubs.Range(func(ch chan Message[K, M], _ struct{}) bool {
		h.deliver(ch, msg)
		return true
	})
	subs, ok := h.keySubs.Load(key)
	if !ok {
		return
	}
	for _, ch := range subs {
		h.deliver(ch, msg)
	}
}

func (h *Hub[K, M]) deliver(ch chan Message[K, M], msg Message[K, M]) {
	select {
	case ch <- msg:
	default:
		h.log.Warn("subscriber buffer full, dropping message")
	}
}

// Subscribe registers for the given keys, or for everything when no
// key is passed. The subscription ends when ctx is cancelled; the
// returned channel is never closed, so consumers select on their own
// ctx alongside it.
func (h *Hub[K, M]) Subscribe(ctx context.Context, keys ...K) <-chan Message[K, M] {
	ch := make(chan Message[K, M], h.buffer)
	if len(keys) == 0 {
		h.globalSubs.Store(ch, struct{}{})
	} else {
		for _, k := range keys {
			h.keySubs.Compute(k, func(old []chan Message[K, M], _ bool) ([]chan Message[K, M], bool) {
				subs := make([]chan Message[K, M], len(old)+1)
				copy(subs, old)
				subs[len(old)] = ch
				return subs, false
			})
		}
	}
	go func() {
		<-ctx.Done()
		if len(keys) == 0 {
			h.globalSubs.Delete(ch)
			return
		}
		for _, k := range keys {
			h.keySubs.Compute(k, func(old []chan Message[K, M], _ bool) ([]chan Message[K, M], bool) {
				subs := make([]chan Message[K, M], 0, len(old))
				for _, c := range old {
					if c != ch {
						subs = append(subs, c)
					}
				}
				return subs, len(subs) == 0
			})
		}
	}()
	return ch
}
