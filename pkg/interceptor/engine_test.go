package interceptor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures the order of interceptor operations across a chain.
type recorder struct {
	calls []string
}

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

// scripted is an interceptor that records every operation.
type scripted struct {
	name    string
	rec     *recorder
	before  func(inv *Invocation) (*Invocation, error)
	after   func(inv *Invocation) (*Invocation, error)
	onThrow func(inv *Invocation) (*Invocation, error)
}

func (p *scripted) Name() string { return p.name }

func (p *scripted) Before(inv *Invocation) (*Invocation, error) {
	p.rec.add(p.name + ".before")
	if p.before != nil {
		return p.before(inv)
	}
	return nil, nil
}

func (p *scripted) After(inv *Invocation) (*Invocation, error) {
	p.rec.add(p.name + ".after")
	if p.after != nil {
		return p.after(inv)
	}
	return nil, nil
}

func (p *scripted) OnThrow(inv *Invocation) (*Invocation, error) {
	p.rec.add(p.name + ".onThrow")
	if p.onThrow != nil {
		return p.onThrow(inv)
	}
	return nil, nil
}

var testKey = NewMethodKey("inventory.Service", "Lookup", "(string) (int, error)")

func quietEngine(opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(append([]Option{WithLogger(logger)}, opts...)...)
}

// run drives a full call the way the shim does and returns the final
// invocation and the error returned by either phase.
func run(t *testing.T, e *Engine, chain []Interceptor, body func(inv *Invocation) (any, error), onThrowErr, afterErr, beforeErr ErrorHandler) (*Invocation, *Cursor, error) {
	t.Helper()

	cur := NewCursor(chain)
	inv := NewInvocation(context.Background(), nil, testKey, []any{"sku-1"})

	inv, err := e.RunEntry(inv, cur, beforeErr)
	if err != nil {
		return inv, cur, err
	}

	if inv.IsSkip() {
		inv.SetResult(inv.SkipResult())
	} else {
		res, berr := body(inv)
		if berr != nil {
			inv.SetThrown(berr)
		} else {
			inv.SetResult(res)
		}
	}

	inv, err = e.RunExit(inv, cur, onThrowErr, afterErr)
	return inv, cur, err
}

func returns(v any) func(*Invocation) (any, error) {
	return func(*Invocation) (any, error) { return v, nil }
}

func TestEngine_BalancedTraversal(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		&scripted{name: "a", rec: rec},
		&scripted{name: "b", rec: rec},
		&scripted{name: "c", rec: rec},
	}

	e := quietEngine()
	inv, cur, err := run(t, e, chain, returns(42), e.LogHandler(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a.before", "b.before", "c.before",
		"c.after", "b.after", "a.after",
	}, rec.calls)
	assert.Equal(t, 42, inv.Result())
	assert.Equal(t, StateCompleted, cur.State())
	assert.Equal(t, 0, cur.Position())
}

func TestEngine_EmptyChain(t *testing.T) {
	e := quietEngine()
	inv, cur, err := run(t, e, nil, returns("ok"), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", inv.Result())
	assert.Equal(t, StateCompleted, cur.State())
}

func TestEngine_SkipTruncation(t *testing.T) {
	tests := []struct {
		name      string
		skipAt    int
		wantCalls []string
	}{
		{
			name:      "first interceptor skips",
			skipAt:    0,
			wantCalls: []string{"i0.before"},
		},
		{
			name:      "middle interceptor skips",
			skipAt:    1,
			wantCalls: []string{"i0.before", "i1.before", "i0.after"},
		},
		{
			name:      "last interceptor skips",
			skipAt:    2,
			wantCalls: []string{"i0.before", "i1.before", "i2.before", "i1.after", "i0.after"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			chain := make([]Interceptor, 3)
			for i := range chain {
				p := &scripted{name: "i" + string(rune('0'+i)), rec: rec}
				if i == tt.skipAt {
					p.before = func(inv *Invocation) (*Invocation, error) {
						inv.Skip("blocked")
						return nil, nil
					}
				}
				chain[i] = p
			}

			bodyRan := false
			body := func(*Invocation) (any, error) {
				bodyRan = true
				return "real", nil
			}

			e := quietEngine()
			inv, cur, err := run(t, e, chain, body, e.LogHandler(), nil, nil)
			require.NoError(t, err)

			assert.False(t, bodyRan, "body must not run when skipped")
			assert.Equal(t, "blocked", inv.Result())
			assert.Equal(t, tt.wantCalls, rec.calls)
			assert.Equal(t, StateSkipped, cur.State())
		})
	}
}

func TestEngine_RethrowFromBeforeHandler(t *testing.T) {
	rec := &recorder{}
	denied := errors.New("denied")
	chain := []Interceptor{
		&scripted{name: "a", rec: rec},
		&scripted{name: "b", rec: rec, before: func(*Invocation) (*Invocation, error) {
			return nil, denied
		}},
		&scripted{name: "c", rec: rec},
	}

	rethrowAll := func(inv *Invocation, _ Interceptor, _ Phase, err error) {
		inv.Rethrow(err)
	}

	e := quietEngine()
	_, cur, err := run(t, e, chain, returns(1), nil, nil, rethrowAll)
	require.Error(t, err)

	var re *RethrowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b", re.Interceptor)
	assert.Equal(t, PhaseBefore, re.Phase)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"a.before", "b.before"}, rec.calls)
	assert.Equal(t, StateRethrown, cur.State())
}

func TestEngine_RethrowWinsOverSkip(t *testing.T) {
	rec := &recorder{}
	stop := errors.New("stop")
	chain := []Interceptor{
		&scripted{name: "a", rec: rec, before: func(inv *Invocation) (*Invocation, error) {
			inv.Skip("skipped")
			inv.Rethrow(stop)
			return nil, nil
		}},
	}

	e := quietEngine()
	inv := NewInvocation(context.Background(), nil, testKey, nil)
	cur := NewCursor(chain)
	_, err := e.RunEntry(inv, cur, nil)

	rethrown, ok := IsRethrow(err)
	require.True(t, ok)
	assert.Equal(t, stop, rethrown)
	assert.Equal(t, StateRethrown, cur.State())
}

func TestEngine_ErrorIsolation(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	chain := []Interceptor{
		&scripted{name: "L", rec: rec},
		&scripted{name: "R", rec: rec, before: func(*Invocation) (*Invocation, error) {
			return nil, boom
		}},
		&scripted{name: "T", rec: rec},
	}

	var handled []error
	handler := func(_ *Invocation, ic Interceptor, phase Phase, err error) {
		assert.Equal(t, "R", ic.Name())
		assert.Equal(t, PhaseBefore, phase)
		handled = append(handled, err)
	}

	bodyRan := false
	body := func(*Invocation) (any, error) {
		bodyRan = true
		return 7, nil
	}

	e := quietEngine()
	inv, _, err := run(t, e, chain, body, nil, nil, handler)
	require.NoError(t, err)

	assert.True(t, bodyRan)
	assert.Equal(t, 7, inv.Result())
	assert.Equal(t, []error{boom}, handled)
	assert.Equal(t, []string{
		"L.before", "R.before", "T.before",
		"T.after", "R.after", "L.after",
	}, rec.calls)
}

func TestEngine_PanicIsIsolated(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		&scripted{name: "p", rec: rec, after: func(*Invocation) (*Invocation, error) {
			panic("kaboom")
		}},
	}

	var got error
	handler := func(_ *Invocation, _ Interceptor, _ Phase, err error) { got = err }

	e := quietEngine()
	inv, _, err := run(t, e, chain, returns("fine"), nil, handler, nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", inv.Result())

	var pe *PanicError
	require.ErrorAs(t, got, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestEngine_BodyErrorPropagates(t *testing.T) {
	rec := &recorder{}
	ioErr := io.ErrUnexpectedEOF
	chain := []Interceptor{
		&scripted{name: "L", rec: rec},
		&scripted{name: "R", rec: rec},
	}
	body := func(*Invocation) (any, error) { return nil, ioErr }

	e := quietEngine()
	inv, _, err := run(t, e, chain, body, e.LogHandler(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ioErr, inv.Thrown())
	assert.Equal(t, []string{
		"L.before", "R.before",
		"R.onThrow", "R.after", "L.onThrow", "L.after",
	}, rec.calls)
}

func TestEngine_NilOnThrowHandlerDisablesOnThrow(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{&scripted{name: "L", rec: rec}}
	body := func(*Invocation) (any, error) { return nil, errors.New("fail") }

	e := quietEngine()
	_, _, err := run(t, e, chain, body, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"L.before", "L.after"}, rec.calls)
}

func TestEngine_OnThrowCanRecover(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		&scripted{name: "fallback", rec: rec, onThrow: func(inv *Invocation) (*Invocation, error) {
			inv.SetThrown(nil)
			inv.SetResult("cached")
			return inv, nil
		}},
	}
	body := func(*Invocation) (any, error) { return nil, errors.New("backend down") }

	e := quietEngine()
	inv, _, err := run(t, e, chain, body, e.LogHandler(), nil, nil)
	require.NoError(t, err)
	assert.NoError(t, inv.Thrown())
	assert.Equal(t, "cached", inv.Result())
}

func TestEngine_RethrowFromOnThrowStopsEarlierInterceptors(t *testing.T) {
	rec := &recorder{}
	converted := errors.New("service unavailable")
	chain := []Interceptor{
		&scripted{name: "outer", rec: rec},
		&scripted{name: "inner", rec: rec, onThrow: func(inv *Invocation) (*Invocation, error) {
			inv.Rethrow(converted)
			return nil, nil
		}},
	}
	body := func(*Invocation) (any, error) { return nil, errors.New("raw") }

	e := quietEngine()
	_, _, err := run(t, e, chain, body, e.LogHandler(), nil, nil)
	require.Error(t, err)

	var re *RethrowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, PhaseOnThrow, re.Phase)
	assert.ErrorIs(t, err, converted)
	assert.Equal(t, []string{"outer.before", "inner.before", "inner.onThrow"}, rec.calls)
}

func TestEngine_RethrowFromAfter(t *testing.T) {
	rec := &recorder{}
	late := errors.New("late rejection")
	chain := []Interceptor{
		&scripted{name: "outer", rec: rec},
		&scripted{name: "inner", rec: rec, after: func(inv *Invocation) (*Invocation, error) {
			inv.Rethrow(late)
			return nil, nil
		}},
	}

	e := quietEngine()
	_, _, err := run(t, e, chain, returns(1), nil, nil, nil)
	rethrown, ok := IsRethrow(err)
	require.True(t, ok)
	assert.Equal(t, late, rethrown)
	assert.Equal(t, []string{"outer.before", "inner.before", "inner.after"}, rec.calls)
}

func TestEngine_AdoptsReplacementInvocation(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		&scripted{name: "rewrite", rec: rec, before: func(inv *Invocation) (*Invocation, error) {
			next := NewInvocation(inv.Context(), inv.Target(), inv.Method(), []any{"sku-2"})
			return next, nil
		}},
		&scripted{name: "check", rec: rec, before: func(inv *Invocation) (*Invocation, error) {
			assert.Equal(t, "sku-2", inv.Argument(0))
			return nil, nil
		}},
	}

	e := quietEngine()
	inv, _, err := run(t, e, chain, func(inv *Invocation) (any, error) {
		return inv.Argument(0), nil
	}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sku-2", inv.Result())
}

func TestEngine_FailedOperationIgnoresReplacement(t *testing.T) {
	denied := errors.New("denied")
	rethrowAll := func(inv *Invocation, _ Interceptor, _ Phase, err error) {
		inv.Rethrow(err)
	}

	t.Run("before", func(t *testing.T) {
		rec := &recorder{}
		chain := []Interceptor{
			&scripted{name: "a", rec: rec, before: func(inv *Invocation) (*Invocation, error) {
				return NewInvocation(inv.Context(), nil, inv.Method(), []any{"sku-2"}), denied
			}},
			&scripted{name: "b", rec: rec},
		}

		_, cur, err := run(t, quietEngine(), chain, returns(1), nil, nil, rethrowAll)
		rethrown, ok := IsRethrow(err)
		require.True(t, ok)
		assert.Equal(t, denied, rethrown)
		assert.Equal(t, []string{"a.before"}, rec.calls)
		assert.Equal(t, StateRethrown, cur.State())
	})

	t.Run("after", func(t *testing.T) {
		rec := &recorder{}
		chain := []Interceptor{
			&scripted{name: "outer", rec: rec},
			&scripted{name: "inner", rec: rec, after: func(inv *Invocation) (*Invocation, error) {
				return NewInvocation(inv.Context(), nil, inv.Method(), nil), denied
			}},
		}

		_, _, err := run(t, quietEngine(), chain, returns(1), nil, rethrowAll, nil)
		rethrown, ok := IsRethrow(err)
		require.True(t, ok)
		assert.Equal(t, denied, rethrown)
		assert.Equal(t, []string{"outer.before", "inner.before", "inner.after"}, rec.calls)
	})

	t.Run("absorbed error keeps current invocation", func(t *testing.T) {
		chain := []Interceptor{
			&scripted{name: "a", rec: &recorder{}, before: func(inv *Invocation) (*Invocation, error) {
				return NewInvocation(inv.Context(), nil, inv.Method(), []any{"sku-2"}), denied
			}},
		}

		inv, _, err := run(t, quietEngine(), chain, func(inv *Invocation) (any, error) {
			return inv.Argument(0), nil
		}, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "sku-1", inv.Result())
	})
}

// countingObserver records observer callbacks.
type countingObserver struct {
	calls    int
	errors   int
	skips    int
	rethrows int
}

func (o *countingObserver) ObserveInterceptor(_ MethodKey, _ string, _ Phase, _ time.Duration, err error) {
	o.calls++
	if err != nil {
		o.errors++
	}
}

func (o *countingObserver) ObserveSkip(MethodKey, string) { o.skips++ }

func (o *countingObserver) ObserveRethrow(MethodKey, string, Phase) { o.rethrows++ }

func TestEngine_Observer(t *testing.T) {
	rec := &recorder{}
	obs := &countingObserver{}
	chain := []Interceptor{
		&scripted{name: "a", rec: rec, before: func(*Invocation) (*Invocation, error) {
			return nil, errors.New("x")
		}},
		&scripted{name: "b", rec: rec, before: func(inv *Invocation) (*Invocation, error) {
			inv.Skip(nil)
			return nil, nil
		}},
	}

	e := quietEngine(WithObserver(obs))
	_, _, err := run(t, e, chain, returns(1), nil, nil, nil)
	require.NoError(t, err)

	// a.before, b.before, a.after
	assert.Equal(t, 3, obs.calls)
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, 1, obs.skips)
	assert.Equal(t, 0, obs.rethrows)
}
