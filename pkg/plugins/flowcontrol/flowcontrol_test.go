package flowcontrol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/warden/pkg/enhance"
	"mercator-hq/warden/pkg/events"
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/limits/ratelimit"
	"mercator-hq/warden/pkg/rules"
)

var lookupKey = interceptor.NewMethodKey("inventory.Service", "Lookup", "(string) (int, error)")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, doc string) *rules.Store {
	t.Helper()
	store := rules.NewStore()
	require.NoError(t, store.Apply("test", "", []byte(doc)))
	return store
}

func enhanced(t *testing.T, body enhance.Body, chain ...interceptor.Interceptor) *enhance.Method {
	t.Helper()
	reg := interceptor.NewRegistry()
	reg.Declare(lookupKey)
	for _, ic := range chain {
		require.NoError(t, reg.Register(lookupKey, ic))
	}
	reg.SealAll()
	engine := interceptor.NewEngine(interceptor.WithLogger(quietLogger()))
	return enhance.NewEnhancer(reg, engine, enhance.WithLogger(quietLogger())).MustEnhance(lookupKey, body)
}

func constant(v any) enhance.Body {
	return func(*interceptor.Invocation) (any, error) { return v, nil }
}

func TestBefore_NoMatchingRulePasses(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: billing
    method: "billing.Service#*"
    qps: 0.001
    burst: 1
`)
	fc := New("flow", store, WithLogger(quietLogger()))
	m := enhanced(t, constant(7), fc)

	for i := 0; i < 3; i++ {
		got, err := m.Invoke(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	}
}

func TestBefore_RejectOverQPS(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: lookup-qps
    method: "inventory.Service#Lookup"
    qps: 0.001
    burst: 1
    behavior: reject
`)
	eventStore := events.NewMemoryStore()
	rec := events.NewRecorder(eventStore, events.WithRecorderLogger(quietLogger()))
	fc := New("flow", store, WithRecorder(rec), WithLogger(quietLogger()))

	calls := 0
	m := enhanced(t, func(*interceptor.Invocation) (any, error) {
		calls++
		return 1, nil
	}, fc)

	_, err := m.Invoke(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "lookup-qps", blocked.Rule)
	assert.Equal(t, ratelimit.ReasonQPS, blocked.Reason)
	assert.True(t, blocked.RetryAfter > 0)
	assert.Equal(t, 1, calls, "body must not run for a rejected call")

	require.NoError(t, rec.Close(context.Background()))
	got, err := eventStore.Query(context.Background(), events.Filter{Kind: events.KindFlowBlocked})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "flow", got[0].Interceptor)
	assert.Equal(t, lookupKey.String(), got[0].Method)
	assert.Equal(t, "lookup-qps", got[0].Attributes["rule"])
	assert.Equal(t, "reject", got[0].Attributes["behavior"])
}

func TestBefore_SkipReturnsFallback(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: lookup-qps
    method: "*#Lookup"
    qps: 0.001
    burst: 1
    behavior: skip
    fallback: -1
`)
	fc := New("flow", store, WithLogger(quietLogger()))

	calls := 0
	m := enhanced(t, func(*interceptor.Invocation) (any, error) {
		calls++
		return 10, nil
	}, fc)

	first, err := enhance.Call[int](context.Background(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, first)

	second, err := enhance.Call[int](context.Background(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, second)
	assert.Equal(t, 1, calls)
}

func TestBefore_ConcurrencyLimit(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: lookup-inflight
    method: "inventory.Service#Lookup"
    max_concurrent: 1
`)
	set := ratelimit.NewSet()
	fc := New("flow", store, WithLimiters(set), WithLogger(quietLogger()))

	release := make(chan struct{})
	entered := make(chan struct{})
	m := enhanced(t, func(inv *interceptor.Invocation) (any, error) {
		if inv.Argument(0) == "slow" {
			close(entered)
			<-release
		}
		return "done", nil
	}, fc)

	done := make(chan error, 1)
	go func() {
		_, err := m.Invoke(context.Background(), nil, "slow")
		done <- err
	}()
	<-entered

	_, err := m.Invoke(context.Background(), nil, "fast")
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, ratelimit.ReasonConcurrency, blocked.Reason)

	close(release)
	require.NoError(t, <-done)

	got, err := m.Invoke(context.Background(), nil, "fast")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 1, set.Len())
}

func TestSlotReleasedOnBodyError(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: lookup-inflight
    method: "inventory.Service#Lookup"
    max_concurrent: 1
`)
	set := ratelimit.NewSet()
	fc := New("flow", store, WithLimiters(set), WithLogger(quietLogger()))
	m := enhanced(t, func(*interceptor.Invocation) (any, error) {
		return nil, io.ErrUnexpectedEOF
	}, fc)

	for i := 0; i < 3; i++ {
		_, err := m.Invoke(context.Background(), nil)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.False(t, errors.Is(err, ErrBlocked))
	}

	lim := set.Get(ratelimit.Rule{Name: "lookup-inflight", MaxConcurrent: 1})
	assert.Zero(t, lim.InFlight())
}

func TestSlotReleasedWhenLaterInterceptorRethrows(t *testing.T) {
	boom := errors.New("boom")
	failing := func(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
		return nil, boom
	}
	rethrow := func(inv *interceptor.Invocation, _ interceptor.Interceptor, _ interceptor.Phase, err error) {
		inv.Rethrow(err)
	}

	tests := []struct {
		name  string
		later interceptor.Funcs
	}{
		{name: "at entry", later: interceptor.Funcs{ID: "strict", BeforeFunc: failing}},
		{name: "at exit", later: interceptor.Funcs{ID: "strict", AfterFunc: failing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, `
flow_control:
  - name: lookup-conc
    method: "inventory.Service#Lookup"
    max_concurrent: 1
`)
			set := ratelimit.NewSet()
			fc := New("flow", store, WithLimiters(set), WithLogger(quietLogger()))

			reg := interceptor.NewRegistry()
			reg.Declare(lookupKey)
			require.NoError(t, reg.Register(lookupKey, fc))
			require.NoError(t, reg.Register(lookupKey, tt.later))
			reg.SealAll()
			engine := interceptor.NewEngine(interceptor.WithLogger(quietLogger()))
			m := enhance.NewEnhancer(reg, engine,
				enhance.WithLogger(quietLogger()),
				enhance.WithHandlers(enhance.Handlers{Before: rethrow, After: rethrow}),
			).MustEnhance(lookupKey, constant(1))

			for i := 0; i < 3; i++ {
				_, err := m.Invoke(context.Background(), nil)
				require.ErrorIs(t, err, boom, "call %d", i)
				assert.False(t, errors.Is(err, ErrBlocked), "call %d", i)
			}

			lim := set.Get(ratelimit.Rule{Name: "lookup-conc", MaxConcurrent: 1})
			assert.Zero(t, lim.InFlight())
		})
	}
}

func TestBefore_RejectReleasesEarlierSlots(t *testing.T) {
	outer := newStore(t, `
flow_control:
  - name: outer-inflight
    method: "*#*"
    max_concurrent: 1
`)
	inner := newStore(t, `
flow_control:
  - name: inner-qps
    method: "*#*"
    qps: 0.001
    burst: 1
`)
	outerSet := ratelimit.NewSet()
	first := New("outer", outer, WithLimiters(outerSet), WithLogger(quietLogger()))
	second := New("inner", inner, WithLogger(quietLogger()))
	m := enhanced(t, constant("ok"), first, second)

	_, err := m.Invoke(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), nil)
	require.ErrorIs(t, err, ErrBlocked)

	lim := outerSet.Get(ratelimit.Rule{Name: "outer-inflight", MaxConcurrent: 1})
	assert.Zero(t, lim.InFlight(), "slot taken by the outer rule must be released")
}

func TestReloadDropsRemovedLimiters(t *testing.T) {
	store := newStore(t, `
flow_control:
  - name: lookup-qps
    method: "*#*"
    qps: 100
`)
	set := ratelimit.NewSet()
	fc := New("flow", store, WithLimiters(set), WithLogger(quietLogger()))
	m := enhanced(t, constant(1), fc)

	_, err := m.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	require.NoError(t, store.Apply("test", "", []byte("version: empty\n")))
	assert.Zero(t, set.Len())

	require.NoError(t, fc.Close())
	require.NoError(t, store.Apply("test", "", []byte(`
flow_control:
  - name: other
    method: "*#*"
    qps: 100
`)))
	_, err = m.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestBlockedError(t *testing.T) {
	err := &BlockedError{Rule: "r", Method: "a.B#C", Reason: "qps", RetryAfter: time.Second}
	assert.Contains(t, err.Error(), `flow rule "r"`)
	assert.Contains(t, err.Error(), "retry after 1s")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, "flow", New("flow", rules.NewStore()).Name())
}
