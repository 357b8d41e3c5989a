package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/warden/pkg/config"
)

func TestRecorder_RecordStampsAndStores(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	kinds := map[Kind]int{}
	rec := NewRecorder(store, WithOnRecord(func(k Kind) {
		mu.Lock()
		kinds[k]++
		mu.Unlock()
	}))

	for i := 0; i < 10; i++ {
		rec.Record(&Event{Kind: KindFlowBlocked, Method: "inventory.Service#Lookup"})
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := store.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("Expected 10 events, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, e := range got {
		if e.ID == "" || e.Time.IsZero() {
			t.Errorf("Expected id and time to be set, got %+v", e)
		}
		if seen[e.ID] {
			t.Errorf("Duplicate event id %s", e.ID)
		}
		seen[e.ID] = true
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds[KindFlowBlocked] != 10 {
		t.Errorf("Expected 10 callbacks, got %d", kinds[KindFlowBlocked])
	}
}

func TestRecorder_RecordAfterCloseIsIgnored(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	rec.Close(context.Background())
	rec.Close(context.Background())

	rec.Record(&Event{Kind: KindRulesReloaded})
	if store.Len() != 0 {
		t.Errorf("Expected no events after close, got %d", store.Len())
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(&Event{Kind: KindFlowBlocked})
	if err := rec.Close(context.Background()); err != nil {
		t.Errorf("Close() on nil recorder = %v", err)
	}
	if rec.Dropped() != 0 || rec.Store() != nil {
		t.Error("Expected zero values from nil recorder")
	}
}

// blockingStore blocks Append until released.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, e *Event) error {
	<-s.release
	return s.MemoryStore.Append(ctx, e)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	rec := NewRecorder(store, WithBufferSize(1))

	for i := 0; i < 5; i++ {
		rec.Record(&Event{Kind: KindFlowBlocked})
	}
	close(store.release)
	rec.Close(context.Background())

	stored := int64(store.Len())
	if stored+rec.Dropped() != 5 {
		t.Errorf("Expected stored+dropped = 5, got %d+%d", stored, rec.Dropped())
	}
	if rec.Dropped() < 3 {
		t.Errorf("Expected at least 3 drops with a one-slot queue, got %d", rec.Dropped())
	}
}

// failingStore rejects every append.
type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, *Event) error { return errors.New("disk full") }

func TestRecorder_StoreErrorIsLogged(t *testing.T) {
	called := false
	rec := NewRecorder(failingStore{NewMemoryStore()}, WithOnRecord(func(Kind) { called = true }))
	rec.Record(&Event{Kind: KindFlowBlocked})
	rec.Close(context.Background())

	if called {
		t.Error("OnRecord must not run for failed writes")
	}
}

func TestRecorder_CloseHonoursContext(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	defer close(store.release)
	rec := NewRecorder(store)
	rec.Record(&Event{Kind: KindFlowBlocked})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rec.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() = %v, want deadline exceeded", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EventsConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: config.EventsConfig{Backend: "memory"}, want: "memory"},
		{name: "modernc", cfg: config.EventsConfig{Backend: "sqlite"}, want: DriverModernc},
		{name: "mattn", cfg: config.EventsConfig{Backend: "sqlite3"}, want: DriverMattn},
		{name: "unknown", cfg: config.EventsConfig{Backend: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SQLite.Path = filepath.Join(t.TempDir(), "events.db")
			store, err := Open(&tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer store.Close()

			switch s := store.(type) {
			case *MemoryStore:
				if tt.want != "memory" {
					t.Errorf("Got memory store, want %s", tt.want)
				}
			case *SQLiteStore:
				if s.Driver() != tt.want {
					t.Errorf("Driver() = %s, want %s", s.Driver(), tt.want)
				}
			}
		})
	}
}
