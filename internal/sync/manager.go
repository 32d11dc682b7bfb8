package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/logging"
)

// defaultResetDelay is how long a terminal completed/failed state stays
// visible on the status stream before the manager returns to idle.
const defaultResetDelay = 2 * time.Second

// Manager owns the sync lifecycle: a closed registry of per-feature
// handlers, a single-flight full pass, an optional auto-sync schedule,
// and a status stream for presentation.
type Manager struct {
	oracle connectivity.Oracle

	mu       gosync.Mutex
	handlers map[DataType]Handler
	syncing  bool
	status   Status
	subs     map[int]chan Status
	nextSub  int
	cron     *cron.Cron
	reset    *time.Timer

	resetDelay time.Duration
}

// NewManager builds an idle manager over the given connectivity oracle.
// Handlers are registered afterwards, before any sync runs.
func NewManager(oracle connectivity.Oracle) *Manager {
	return &Manager{
		oracle:     oracle,
		handlers:   make(map[DataType]Handler),
		status:     Status{State: StateIdle},
		subs:       make(map[int]chan Status),
		resetDelay: defaultResetDelay,
	}
}

// SetResetDelay overrides how long terminal states linger before the
// manager returns to idle.
func (m *Manager) SetResetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDelay = d
}

// Register binds a handler to a data type. Registering the same type
// twice is a wiring bug and fails loudly.
func (m *Manager) Register(dt DataType, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[dt]; ok {
		return errors.Newf(errors.ErrInternal, "sync handler already registered for %s", dt)
	}
	m.handlers[dt] = h
	return nil
}

// Status returns a snapshot of the current sync status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe returns a channel of status snapshots and a cancel func.
// Delivery is lossy under a slow consumer but the latest snapshot
// always arrives.
func (m *Manager) Subscribe() (<-chan Status, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Status, 8)
	m.subs[id] = ch
	ch <- m.status
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// setState mutates the status under lock and broadcasts the snapshot.
func (m *Manager) setState(mutate func(*Status)) {
	m.mu.Lock()
	mutate(&m.status)
	snap := m.status
	subs := make([]chan Status, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop the oldest snapshot to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// UpdatePendingCount publishes the number of rows still awaiting sync.
// Repositories call this after local mutations and sync passes.
func (m *Manager) UpdatePendingCount(n int) {
	m.setState(func(s *Status) { s.PendingCount = n })
}

// Sync runs one full pass over every registered handler. Overlapping
// calls fail immediately rather than queue, and an unreachable network
// short-circuits before any handler runs.
func (m *Manager) Sync(ctx context.Context) *Result {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return &Result{
			Success: false,
			Errors:  []string{errors.New(errors.ErrSyncInProgress, "sync already in progress").Error()},
		}
	}
	if !m.oracle.Reachable() {
		m.mu.Unlock()
		return &Result{
			Success: false,
			Errors:  []string{errors.New(errors.ErrNetwork, "network unreachable").Error()},
		}
	}
	m.syncing = true
	if m.reset != nil {
		m.reset.Stop()
		m.reset = nil
	}
	order := make([]DataType, 0, len(m.handlers))
	for dt := range m.handlers {
		order = append(order, dt)
	}
	m.mu.Unlock()
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	m.setState(func(s *Status) { s.State = StateSyncing })
	logging.Info("sync pass started", zap.Int("handlers", len(order)))

	agg := &Result{Success: true}
	for _, dt := range order {
		m.mu.Lock()
		h := m.handlers[dt]
		m.mu.Unlock()
		agg.Merge(dt, m.runHandler(ctx, dt, h))
	}

	m.finish(agg)
	return agg
}

// SyncDataType runs exactly one handler, with the same reachability
// short-circuit as a full pass.
func (m *Manager) SyncDataType(ctx context.Context, dt DataType) (*Result, error) {
	m.mu.Lock()
	h, ok := m.handlers[dt]
	if !ok {
		m.mu.Unlock()
		return nil, errors.Newf(errors.ErrNoSyncHandler, "no sync handler for data type %s", dt)
	}
	if m.syncing {
		m.mu.Unlock()
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	if !m.oracle.Reachable() {
		m.mu.Unlock()
		return nil, errors.New(errors.ErrNetwork, "network unreachable")
	}
	m.syncing = true
	if m.reset != nil {
		m.reset.Stop()
		m.reset = nil
	}
	m.mu.Unlock()

	m.setState(func(s *Status) { s.State = StateSyncing })
	agg := &Result{Success: true}
	agg.Merge(dt, m.runHandler(ctx, dt, h))
	m.finish(agg)
	return agg, nil
}

// runHandler invokes one handler, converting a panic into a recorded
// failure so one feature cannot take down the pass.
func (m *Manager) runHandler(ctx context.Context, dt DataType, h Handler) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("sync handler panicked",
				zap.String("data_type", string(dt)),
				zap.Any("panic", r))
			res = &Result{Success: false, Errors: []string{fmt.Sprintf("panic: %v", r)}}
		}
	}()
	res = h.Sync(ctx)
	if res == nil {
		res = &Result{Success: true}
	}
	return res
}

// finish records the terminal state and arms the reset back to idle.
func (m *Manager) finish(agg *Result) {
	now := time.Now()
	state := StateCompleted
	lastErr := ""
	if len(agg.Errors) > 0 {
		state = StateFailed
		lastErr = agg.Errors[0]
		agg.Success = false
	}
	logging.Info("sync pass finished",
		zap.String("state", string(state)),
		zap.Int("items_synced", agg.ItemsSynced),
		zap.Int("errors", len(agg.Errors)))

	m.setState(func(s *Status) {
		s.State = state
		s.LastSyncAt = now
		s.LastError = lastErr
	})

	m.mu.Lock()
	m.syncing = false
	delay := m.resetDelay
	m.reset = time.AfterFunc(delay, func() {
		m.setState(func(s *Status) {
			if s.State == StateCompleted || s.State == StateFailed {
				s.State = StateIdle
			}
		})
	})
	m.mu.Unlock()
}

// StartAutoSync schedules periodic full passes. Calling it again
// replaces the previous schedule.
func (m *Manager) StartAutoSync(interval time.Duration) error {
	if interval <= 0 {
		return errors.New(errors.ErrValidation, "auto sync interval must be positive")
	}
	m.mu.Lock()
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
	c := cron.New()
	m.cron = c
	m.mu.Unlock()

	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		res := m.Sync(context.Background())
		if !res.Success {
			logging.Warn("auto sync pass had errors", zap.Strings("errors", res.Errors))
		}
	})
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "schedule auto sync", err)
	}
	c.Start()
	logging.Info("auto sync started", zap.Duration("interval", interval))
	return nil
}

// StopAutoSync cancels the periodic schedule if one is active.
func (m *Manager) StopAutoSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// WatchConnectivity drains the oracle's change stream and triggers a
// full pass whenever the device comes back online. It blocks until the
// stream closes or ctx is done.
func (m *Manager) WatchConnectivity(ctx context.Context) {
	changes := m.oracle.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case reachable, ok := <-changes:
			if !ok {
				return
			}
			if !reachable {
				continue
			}
			logging.Info("connectivity restored, starting sync pass")
			res := m.Sync(ctx)
			if !res.Success {
				logging.Warn("reconnect sync pass had errors", zap.Strings("errors", res.Errors))
			}
		}
	}
}

// Close stops auto sync and the reset timer.
func (m *Manager) Close() {
	m.StopAutoSync()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reset != nil {
		m.reset.Stop()
		m.reset = nil
	}
}
