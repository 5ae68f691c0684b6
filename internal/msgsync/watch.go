package msgsync

import (
	"context"
	"sync"

	"robot-market/internal/models"
)

// Watch is a running realtime subscription feeding the store. Close releases
// it exactly once; later calls return the first result.
type Watch struct {
	topic  string
	store  *Store
	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Topic is the realtime topic the watch listens on.
func (w *Watch) Topic() string {
	return w.topic
}

// Done is closed once the watch stops delivering events.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Close stops the watch and releases its subscription.
func (w *Watch) Close() error {
	w.once.Do(func() {
		w.cancel()
		w.err = w.sub.Close()
		<-w.done
		w.store.mu.Lock()
		delete(w.store.watches, w)
		w.store.mu.Unlock()
	})
	return w.err
}

func (s *Store) startWatch(ctx context.Context, topic string, handle func(context.Context, models.ChangeEvent)) (*Watch, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	sub, err := s.backend.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	// The watch lives until Close, not until the caller's ctx ends.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &Watch{topic: topic, store: s, sub: sub, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = sub.Close()
		return nil, ErrClosed
	}
	s.watches[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(w.done)
		events := sub.Events()
		for {
			select {
			case <-wctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				handle(wctx, ev)
			}
		}
	}()
	return w, nil
}
