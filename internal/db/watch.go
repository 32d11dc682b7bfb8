package db

import (
	"sync"

	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/logging"
)

// notifier fans table-change signals out to live subscriptions. Every write
// method on the Store reports the tables it touched; each subscription on
// those tables re-runs its query and re-emits the result set.
type notifier struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]chan struct{})}
}

// subscribe registers interest in a table. The returned channel receives a
// coalesced signal after each write; the returned func tears the
// registration down.
func (n *notifier) subscribe(table string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[table] == nil {
		n.subs[table] = make(map[int]chan struct{})
	}
	id := n.next
	n.next++

	ch := make(chan struct{}, 1)
	n.subs[table][id] = ch

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[table], id)
	}
	return ch, unsubscribe
}

// notify signals every subscription on the given tables. Sends never block:
// a subscription that has not consumed its previous signal keeps exactly one
// pending signal, which is enough to trigger a re-query.
func (n *notifier) notify(tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, table := range tables {
		for _, ch := range n.subs[table] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Subscription is a live, push-based view over a Store query. The current
// result set is delivered on C immediately after subscribing, and again
// after every write to the watched table, whichever component made it.
// Only the latest result set is retained: a slow consumer skips
// intermediate states but always observes the newest one.
//
// Subscriptions must be closed when the owning component is disposed, or
// their goroutine leaks.
type Subscription[T any] struct {
	C    <-chan []T
	out  chan []T
	stop chan struct{}
	once sync.Once
}

func newSubscription[T any](n *notifier, table string, query func() ([]T, error)) *Subscription[T] {
	signal, unsubscribe := n.subscribe(table)

	s := &Subscription[T]{
		out:  make(chan []T, 1),
		stop: make(chan struct{}),
	}
	s.C = s.out

	go func() {
		defer unsubscribe()

		// Initial snapshot so late subscribers see current state.
		s.emit(table, query)

		for {
			select {
			case <-s.stop:
				return
			case <-signal:
				s.emit(table, query)
			}
		}
	}()

	return s
}

// emit re-runs the query and replaces any undelivered result set with the
// fresh one.
func (s *Subscription[T]) emit(table string, query func() ([]T, error)) {
	rows, err := query()
	if err != nil {
		logging.Warn("watch query failed", zap.String("table", table), zap.Error(err))
		return
	}

	for {
		select {
		case s.out <- rows:
			return
		case <-s.stop:
			return
		default:
			// Drop the stale undelivered snapshot.
			select {
			case <-s.out:
			default:
			}
		}
	}
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() { close(s.stop) })
}
