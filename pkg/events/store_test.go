package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// storeFactories returns a constructor per backend.
func storeFactories() map[string]func(t *testing.T) Store {
	sqliteFactory := func(driver string) func(t *testing.T) Store {
		return func(t *testing.T) Store {
			t.Helper()
			s, err := NewSQLiteStore(SQLiteConfig{
				Driver:       driver,
				Path:         filepath.Join(t.TempDir(), "data", "events.db"),
				MaxOpenConns: 2,
				WALMode:      true,
				BusyTimeout:  time.Second,
			})
			if err != nil {
				t.Fatalf("Failed to create SQLite store: %v", err)
			}
			return s
		}
	}

	return map[string]func(t *testing.T) Store{
		"memory":  func(*testing.T) Store { return NewMemoryStore() },
		"modernc": sqliteFactory(DriverModernc),
		"mattn":   sqliteFactory(DriverMattn),
	}
}

// seed appends n events one minute apart, alternating kinds.
func seed(t *testing.T, s Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		kind := KindFlowBlocked
		if i%2 == 1 {
			kind = KindInterceptorError
		}
		e := &Event{
			ID:          "evt-" + string(rune('a'+i)),
			Time:        baseTime.Add(time.Duration(i) * time.Minute),
			Kind:        kind,
			Method:      "inventory.Service#Lookup",
			Interceptor: "flow",
			Message:     "event",
		}
		if err := s.Append(context.Background(), e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			e := &Event{
				ID:           "evt-1",
				Time:         baseTime,
				Kind:         KindFlowBlocked,
				Method:       "inventory.Service#Lookup",
				Interceptor:  "flow",
				InvocationID: "inv-1",
				Message:      "qps limit exceeded",
				Attributes:   map[string]string{"rule": "lookup", "reason": "qps"},
			}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			got, err := s.Query(ctx, Filter{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Expected 1 event, got %d", len(got))
			}
			g := got[0]
			if g.ID != e.ID || g.Kind != e.Kind || g.Method != e.Method ||
				g.Interceptor != e.Interceptor || g.InvocationID != e.InvocationID || g.Message != e.Message {
				t.Errorf("Query() = %+v, want %+v", g, e)
			}
			if !g.Time.Equal(e.Time) {
				t.Errorf("Time = %v, want %v", g.Time, e.Time)
			}
			if g.Attributes["rule"] != "lookup" || g.Attributes["reason"] != "qps" {
				t.Errorf("Attributes = %v", g.Attributes)
			}
		})
	}
}

func TestStore_QueryFilters(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{
			name:    "all newest first",
			filter:  Filter{},
			wantIDs: []string{"evt-e", "evt-d", "evt-c", "evt-b", "evt-a"},
		},
		{
			name:    "by kind",
			filter:  Filter{Kind: KindInterceptorError},
			wantIDs: []string{"evt-d", "evt-b"},
		},
		{
			name:    "time range inclusive",
			filter:  Filter{Since: baseTime.Add(time.Minute), Until: baseTime.Add(3 * time.Minute)},
			wantIDs: []string{"evt-d", "evt-c", "evt-b"},
		},
		{
			name:    "limit and offset",
			filter:  Filter{Limit: 2, Offset: 1},
			wantIDs: []string{"evt-d", "evt-c"},
		},
		{
			name:    "offset without limit",
			filter:  Filter{Offset: 3},
			wantIDs: []string{"evt-b", "evt-a"},
		},
		{
			name:    "unknown method",
			filter:  Filter{Method: "billing.Service#Charge"},
			wantIDs: []string{},
		},
	}

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			seed(t, s, 5)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.Query(context.Background(), tt.filter)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					ids := make([]string, 0, len(got))
					for _, e := range got {
						ids = append(ids, e.ID)
					}
					if len(ids) != len(tt.wantIDs) {
						t.Fatalf("Query() ids = %v, want %v", ids, tt.wantIDs)
					}
					for i := range ids {
						if ids[i] != tt.wantIDs[i] {
							t.Fatalf("Query() ids = %v, want %v", ids, tt.wantIDs)
						}
					}
				})
			}
		})
	}
}

func TestStore_CountAndDelete(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()
			seed(t, s, 5)

			n, err := s.Count(ctx, Filter{Kind: KindFlowBlocked, Limit: 1})
			if err != nil || n != 3 {
				t.Fatalf("Count() = %d, %v; want 3", n, err)
			}

			deleted, err := s.DeleteBefore(ctx, baseTime.Add(2*time.Minute))
			if err != nil || deleted != 2 {
				t.Fatalf("DeleteBefore() = %d, %v; want 2", deleted, err)
			}

			deleted, err = s.DeleteOldest(ctx, 1)
			if err != nil || deleted != 1 {
				t.Fatalf("DeleteOldest() = %d, %v; want 1", deleted, err)
			}

			got, err := s.Query(ctx, Filter{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 2 || got[0].ID != "evt-e" || got[1].ID != "evt-d" {
				t.Errorf("Expected evt-e and evt-d to remain, got %d events", len(got))
			}

			deleted, err = s.DeleteOldest(ctx, 10)
			if err != nil || deleted != 2 {
				t.Fatalf("DeleteOldest() = %d, %v; want 2", deleted, err)
			}
		})
	}
}

func TestMemoryStore_QueryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Append(ctx, &Event{ID: "a", Time: baseTime, Kind: KindFlowBlocked, Attributes: map[string]string{"k": "v"}}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Query(ctx, Filter{})
	got[0].Attributes["k"] = "changed"

	again, _ := s.Query(ctx, Filter{})
	if again[0].Attributes["k"] != "v" {
		t.Error("Query results must not alias stored events")
	}
}

func TestMemoryStore_AppendAfterClose(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	if err := s.Append(context.Background(), &Event{ID: "a", Time: baseTime}); err == nil {
		t.Error("Expected error appending to a closed store")
	}
}

func TestNewSQLiteStore_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SQLiteConfig
	}{
		{name: "missing path", cfg: SQLiteConfig{Driver: DriverModernc}},
		{name: "unknown driver", cfg: SQLiteConfig{Driver: "postgres", Path: "x.db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSQLiteStore(tt.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("flow_blocked"); err != nil || k != KindFlowBlocked {
		t.Errorf("ParseKind(flow_blocked) = %q, %v", k, err)
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
