package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/errors"
)

// blockingHandler holds a sync pass open until released.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (h *blockingHandler) Sync(ctx context.Context) *Result {
	close(h.started)
	<-h.release
	return &Result{Success: true, ItemsSynced: 1}
}

func newTestManager(t *testing.T, reachable bool) (*Manager, *connectivity.Static) {
	t.Helper()
	oracle := connectivity.NewStatic(reachable)
	m := NewManager(oracle)
	m.SetResetDelay(50 * time.Millisecond)
	t.Cleanup(m.Close)
	return m, oracle
}

func TestSyncAggregatesHandlerResults(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 2}
	})))
	require.NoError(t, m.Register(DataTypeQASessions, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 3}
	})))

	res := m.Sync(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.ItemsSynced)
	assert.Empty(t, res.Errors)
}

func TestSyncCollectsPerHandlerErrors(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 1}
	})))
	require.NoError(t, m.Register(DataTypeVoiceProfiles, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: false, Errors: []string{"upload incomplete"}}
	})))

	res := m.Sync(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ItemsSynced, "a failing feature does not block the others")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], string(DataTypeVoiceProfiles))
}

func TestSyncRecoversPanickingHandler(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		panic("boom")
	})))
	require.NoError(t, m.Register(DataTypeParents, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 1}
	})))

	res := m.Sync(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ItemsSynced)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "panic")
}

func TestSyncRejectsOverlappingPasses(t *testing.T) {
	m, _ := newTestManager(t, true)
	h := newBlockingHandler()
	require.NoError(t, m.Register(DataTypeStories, h))

	first := make(chan *Result, 1)
	go func() { first <- m.Sync(context.Background()) }()
	<-h.started

	res := m.Sync(context.Background())
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], string(errors.ErrSyncInProgress))

	close(h.release)
	got := <-first
	assert.True(t, got.Success)
}

func TestSyncShortCircuitsWhenUnreachable(t *testing.T) {
	m, _ := newTestManager(t, false)
	called := false
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		called = true
		return &Result{Success: true}
	})))

	res := m.Sync(context.Background())
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], string(errors.ErrNetwork))
	assert.False(t, called)
}

func TestSyncDataType(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 1}
	})))

	res, err := m.SyncDataType(context.Background(), DataTypeStories)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ItemsSynced)

	_, err = m.SyncDataType(context.Background(), DataTypePendingQuestions)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoSyncHandler))
}

func TestSyncDataTypeUnreachable(t *testing.T) {
	m, _ := newTestManager(t, false)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true}
	})))

	_, err := m.SyncDataType(context.Background(), DataTypeStories)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m, _ := newTestManager(t, true)
	h := HandlerFunc(func(ctx context.Context) *Result { return &Result{Success: true} })
	require.NoError(t, m.Register(DataTypeStories, h))
	assert.Error(t, m.Register(DataTypeStories, h))
}

func TestStatusStreamWalksLifecycle(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: true, ItemsSynced: 1}
	})))

	ch, cancel := m.Subscribe()
	defer cancel()

	// Initial snapshot is idle.
	first := <-ch
	assert.Equal(t, StateIdle, first.State)

	m.Sync(context.Background())

	var states []State
	deadline := time.After(2 * time.Second)
	for len(states) < 3 {
		select {
		case s := <-ch:
			states = append(states, s.State)
		case <-deadline:
			t.Fatalf("status stream stalled, saw %v", states)
		}
	}
	assert.Equal(t, StateSyncing, states[0])
	assert.Equal(t, StateCompleted, states[1])
	assert.Equal(t, StateIdle, states[2], "terminal state resets to idle after the delay")

	status := m.Status()
	assert.NotZero(t, status.LastSyncAt)
}

func TestFailedPassRecordsLastError(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		return &Result{Success: false, Errors: []string{"connection reset"}}
	})))

	res := m.Sync(context.Background())
	assert.False(t, res.Success)

	status := m.Status()
	assert.NotEmpty(t, status.LastError)
	assert.Eventually(t, func() bool {
		return m.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdatePendingCountBroadcasts(t *testing.T) {
	m, _ := newTestManager(t, true)
	ch, cancel := m.Subscribe()
	defer cancel()
	<-ch // initial snapshot

	m.UpdatePendingCount(7)
	select {
	case s := <-ch:
		assert.Equal(t, 7, s.PendingCount)
	case <-time.After(time.Second):
		t.Fatal("no pending count update")
	}
	assert.Equal(t, 7, m.Status().PendingCount)
}

func TestWatchConnectivityTriggersSyncOnReconnect(t *testing.T) {
	m, oracle := newTestManager(t, false)
	ran := make(chan struct{}, 1)
	require.NoError(t, m.Register(DataTypeStories, HandlerFunc(func(ctx context.Context) *Result {
		ran <- struct{}{}
		return &Result{Success: true}
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.WatchConnectivity(ctx)

	oracle.Set(true)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not trigger a sync pass")
	}
}

func TestStartAutoSyncValidatesInterval(t *testing.T) {
	m, _ := newTestManager(t, true)
	assert.Error(t, m.StartAutoSync(0))
	require.NoError(t, m.StartAutoSync(time.Hour))
	// Restarting replaces the previous schedule.
	require.NoError(t, m.StartAutoSync(time.Hour))
	m.StopAutoSync()
}
