package timer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fixkme/timerd/clock"
	"github.com/fixkme/timerd/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler() (*Scheduler, *clock.Manual) {
	c := clock.NewManual(epoch)
	return New(WithClock(c), WithShards(4)), c
}

func mustCreate(t *testing.T, s *Scheduler, req CreateRequest) uint64 {
	t.Helper()
	id, ok, err := s.Create(req)
	require.NoError(t, err)
	require.True(t, ok, "create %+v rejected", req)
	return id
}

// checkInvariants 索引和队列描述同一组定时器
func checkInvariants(t *testing.T, s *Scheduler) {
	t.Helper()
	queued := s.ticks.Len() + s.realtime.Len()
	require.Equal(t, queued, s.byID.Len(), "id index size != queued")

	keyed := 0
	s.byID.Range(func(id uint64, tm *Timer) bool {
		q := s.queueOf(tm)
		q.mu.Lock()
		cur, ok := q.q.Get(id)
		q.mu.Unlock()
		require.True(t, ok, "timer %d indexed but not queued", id)
		require.Same(t, tm, cur, "timer %d index points at a stale entry", id)
		if tm.Key != "" {
			keyed++
			byKey, ok := s.byKey.Load(tm.Key)
			require.True(t, ok, "timer %d key %q not indexed", id, tm.Key)
			require.Same(t, tm, byKey)
		}
		return true
	})
	require.Equal(t, keyed, s.byKey.Len(), "key index size != keyed timers")
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	s, _ := newTestScheduler()
	assert.Equal(t, uint64(1), mustCreate(t, s, CreateRequest{Key: "a", Due: 1}))
	assert.Equal(t, uint64(2), mustCreate(t, s, CreateRequest{Key: "b", Due: 1}))
	assert.Equal(t, uint64(3), mustCreate(t, s, CreateRequest{Due: 1}))
	assert.Equal(t, "Timers: 3, RWT: 0", s.Status())
	checkInvariants(t, s)
}

func TestConcreteScenarios(t *testing.T) {
	s, _ := newTestScheduler()

	id := mustCreate(t, s, CreateRequest{Key: "h1", Callback: "cb1", Due: 10, Interval: 5})
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, []Dispatched{{ID: 1}}, s.Dispatch(10))
	_, ok := s.Remaining(10, 1)
	assert.False(t, ok)

	id = mustCreate(t, s, CreateRequest{Key: "h2", Callback: "cb2", Due: 10, Interval: 5, Flags: Loop})
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, []Dispatched{{ID: 2, Looping: true}}, s.Dispatch(10))
	left, ok := s.Remaining(10, 2)
	require.True(t, ok)
	assert.Equal(t, 5.0, left)
	checkInvariants(t, s)
}

func TestCreateRejectsDuplicateKey(t *testing.T) {
	s, _ := newTestScheduler()
	first := mustCreate(t, s, CreateRequest{Key: "k", Due: 5})

	id, ok, err := s.Create(CreateRequest{Key: "k", Due: 7})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id)

	// Unique alone does not allow replacing
	_, ok, err = s.Create(CreateRequest{Key: "k", Due: 7, Flags: Unique})
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok := s.Lookup(first)
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Due)
	assert.Equal(t, 1, s.byID.Len())
	checkInvariants(t, s)
}

func TestCreateUniqueOverrideReplacesInPlace(t *testing.T) {
	s, _ := newTestScheduler()
	first := mustCreate(t, s, CreateRequest{Key: "k", Callback: "old", Due: 5})

	id := mustCreate(t, s, CreateRequest{Key: "k", Callback: "new", Due: 20, Flags: Unique | Override})
	assert.Equal(t, first, id)

	left, ok := s.Remaining(0, id)
	require.True(t, ok)
	assert.Equal(t, 20.0, left)
	got, _ := s.Lookup(id)
	assert.Equal(t, "new", got.Callback)
	assert.Equal(t, "Timers: 1, RWT: 0", s.Status())

	// the replaced entry must not fire at its old due time
	assert.Nil(t, s.Dispatch(10))
	assert.Equal(t, []Dispatched{{ID: id}}, s.Dispatch(20))
	checkInvariants(t, s)
}

func TestCreateUniqueOverrideAcrossDomains(t *testing.T) {
	s, c := newTestScheduler()
	first := mustCreate(t, s, CreateRequest{Key: "k", Due: 5})

	id := mustCreate(t, s, CreateRequest{Key: "k", Interval: 30, Flags: Unique | Override | RealTime})
	assert.Equal(t, first, id)
	assert.Equal(t, "Timers: 0, RWT: 1", s.Status())
	checkInvariants(t, s)

	c.Advance(3 * time.Second)
	assert.Equal(t, []Dispatched{{ID: id}}, s.Dispatch(100))
}

func TestCreateOverrideWithoutUniqueKeepsBoth(t *testing.T) {
	s, _ := newTestScheduler()
	first := mustCreate(t, s, CreateRequest{Key: "k", Due: 5, Flags: Stoppable})
	second := mustCreate(t, s, CreateRequest{Key: "k", Due: 8, Flags: Override | Stoppable})
	assert.NotEqual(t, first, second)

	// two live timers, one key entry pointing at the newest
	assert.Equal(t, 2, s.byID.Len())
	assert.Equal(t, 1, s.byKey.Len())
	holder, _ := s.byKey.Load("k")
	assert.Equal(t, second, holder.ID)

	// dispatching the older one must not evict the newer key holder
	assert.Equal(t, []Dispatched{{ID: first}}, s.Dispatch(5))
	holder, ok := s.byKey.Load("k")
	require.True(t, ok)
	assert.Equal(t, second, holder.ID)

	id, ok := s.CancelByKey("k")
	require.True(t, ok)
	assert.Equal(t, second, id)
	checkInvariants(t, s)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestScheduler()
	cases := []CreateRequest{
		{Due: -1},
		{Interval: -0.5},
		{Due: math.NaN()},
		{Interval: math.Inf(1)},
		{Flags: 64},
		{Interval: 1e11, Flags: RealTime},
		{Interval: clock.MaxDeciseconds, Flags: RealTime | Loop},
	}
	for _, req := range cases {
		_, ok, err := s.Create(req)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, errs.InvalidArg), "req %+v: %v", req, err)
	}
	assert.Equal(t, uint64(0), s.Stats().LastID)
}

func TestRealTimeLongInterval(t *testing.T) {
	s, clk := newTestScheduler()
	// 逻辑时间域不换算Duration, 大间隔合法
	mustCreate(t, s, CreateRequest{Due: 1, Interval: 1e11})

	id := mustCreate(t, s, CreateRequest{Interval: 9e10, Flags: RealTime})
	left, ok := s.Remaining(0, id)
	require.True(t, ok)
	assert.InDelta(t, 9e10, left, 1)

	clk.Advance(time.Millisecond)
	assert.Empty(t, s.Dispatch(0))
	assert.Equal(t, "Timers: 1, RWT: 1", s.Status())
	checkInvariants(t, s)
}

func TestCancelRequiresStoppable(t *testing.T) {
	s, _ := newTestScheduler()
	fixed := mustCreate(t, s, CreateRequest{Key: "fixed", Due: 5})
	stoppable := mustCreate(t, s, CreateRequest{Key: "stop", Due: 5, Flags: Stoppable})

	_, ok := s.Cancel(fixed)
	assert.False(t, ok)
	_, ok = s.CancelByKey("fixed")
	assert.False(t, ok)

	id, ok := s.Cancel(stoppable)
	require.True(t, ok)
	assert.Equal(t, stoppable, id)
	_, ok = s.Cancel(stoppable)
	assert.False(t, ok)

	// the non-stoppable one still fires
	assert.Equal(t, []Dispatched{{ID: fixed}}, s.Dispatch(5))
	checkInvariants(t, s)
}

func TestCancelByKey(t *testing.T) {
	s, _ := newTestScheduler()
	id := mustCreate(t, s, CreateRequest{Key: "k", Interval: 10, Flags: Stoppable | RealTime})

	got, ok := s.CancelByKey("k")
	require.True(t, ok)
	assert.Equal(t, id, got)
	_, ok = s.CancelByKey("k")
	assert.False(t, ok)
	_, ok = s.CancelByKey("")
	assert.False(t, ok)
	assert.Equal(t, "Timers: 0, RWT: 0", s.Status())
	checkInvariants(t, s)
}

func TestInvokeBypassesStoppable(t *testing.T) {
	s, _ := newTestScheduler()
	id := mustCreate(t, s, CreateRequest{Key: "k", Due: 100, Flags: Loop})

	got, ok := s.Invoke(id)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = s.Invoke(id)
	assert.False(t, ok)
	_, ok = s.Remaining(0, id)
	assert.False(t, ok)
	assert.Nil(t, s.Dispatch(1000))
	checkInvariants(t, s)
}

func TestRemainingUnknown(t *testing.T) {
	s, _ := newTestScheduler()
	_, ok := s.Remaining(0, 42)
	assert.False(t, ok)
}

func TestRemainingRealTime(t *testing.T) {
	s, c := newTestScheduler()
	id := mustCreate(t, s, CreateRequest{Interval: 50, Flags: RealTime})

	left, ok := s.Remaining(0, id)
	require.True(t, ok)
	assert.InDelta(t, 50.0, left, 1e-9)

	c.Advance(2 * time.Second)
	left, _ = s.Remaining(12345, id)
	assert.InDelta(t, 30.0, left, 1e-9)
}

func TestStats(t *testing.T) {
	s, _ := newTestScheduler()
	mustCreate(t, s, CreateRequest{Key: "a", Due: 1})
	mustCreate(t, s, CreateRequest{Due: 2})
	mustCreate(t, s, CreateRequest{Key: "c", Interval: 1, Flags: RealTime})
	s.Dispatch(1)

	st := s.Stats()
	assert.Equal(t, Stats{Timers: 1, RealTime: 1, ByID: 2, ByKey: 1, LastBatch: 1, LastID: 3}, st)
}
