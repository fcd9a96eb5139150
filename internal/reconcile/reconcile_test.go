package reconcile

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"wastescan/internal/apiclient"
	"wastescan/internal/history"
	"wastescan/internal/kvstore"
	"wastescan/internal/prediction"
	"wastescan/internal/services"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	items []apiclient.HistoryItem
	err   error
	calls atomic.Int32
	limit atomic.Int32
	gate  chan struct{}
}

func (s *stubSource) FetchHistory(ctx context.Context, limit int) ([]apiclient.HistoryItem, error) {
	s.calls.Add(1)
	s.limit.Store(int32(limit))
	if s.gate != nil {
		<-s.gate
	}
	return s.items, s.err
}

func int64Ptr(v int64) *int64 { return &v }

func TestMapItemPrecedence(t *testing.T) {
	item := apiclient.HistoryItem{
		ID:             int64Ptr(7),
		Class:          "organik",
		PredictedClass: "anorganik",
		Confidence:     0.91,
		CreatedAt:      "2025-02-10 08:30:00",
		Timestamp:      "2024-01-01T00:00:00Z",
		ImageData:      "data:image/png;base64,AAA=",
		Image:          "data:image/png;base64,BBB=",
	}
	got, err := MapItem(item, fixedNow)
	if err != nil {
		t.Fatalf("MapItem: %v", err)
	}
	want := prediction.Record{
		ID:         int64Ptr(7),
		Label:      "organik",
		Confidence: 0.91,
		Image:      "data:image/png;base64,AAA=",
		Timestamp:  time.Date(2025, 2, 10, 8, 30, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestMapItemFallbacks(t *testing.T) {
	got, err := MapItem(apiclient.HistoryItem{
		PredictedClass: "campuran",
		Confidence:     0.5,
		Timestamp:      "2025-01-05T10:00:00+07:00",
		Image:          "img",
	}, fixedNow)
	if err != nil {
		t.Fatalf("MapItem: %v", err)
	}
	if got.Label != "campuran" || got.Image != "img" {
		t.Fatalf("unexpected fallback mapping: %+v", got)
	}
	if want := time.Date(2025, 1, 5, 3, 0, 0, 0, time.UTC); !got.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want)
	}

	got, err = MapItem(apiclient.HistoryItem{Class: "organik", Confidence: 0.2}, fixedNow)
	if err != nil {
		t.Fatalf("MapItem: %v", err)
	}
	if !got.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected now fallback, got %v", got.Timestamp)
	}
}

func TestMapItemRejectsInvalidEntries(t *testing.T) {
	cases := map[string]apiclient.HistoryItem{
		"missing label":       {Confidence: 0.5},
		"confidence too high": {Class: "organik", Confidence: 1.5},
		"bad created_at":      {Class: "organik", Confidence: 0.5, CreatedAt: "yesterday"},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := MapItem(item, fixedNow); err == nil {
				t.Fatal("expected mapping error")
			}
		})
	}
}

func TestCreatedAtWithFractionalSeconds(t *testing.T) {
	got, err := MapItem(apiclient.HistoryItem{Class: "organik", Confidence: 0.5, CreatedAt: "2025-02-10 08:30:00.250000"}, fixedNow)
	if err != nil {
		t.Fatalf("MapItem: %v", err)
	}
	if want := time.Date(2025, 2, 10, 8, 30, 0, 250000000, time.UTC); !got.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want)
	}
}

func TestRunReplacesLocalHistory(t *testing.T) {
	kv := kvstore.NewMemory()
	store := history.New(kv, 2, nil)
	if err := store.Add(prediction.Record{Label: "anorganik", Confidence: 0.4, Timestamp: fixedNow}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	source := &stubSource{items: []apiclient.HistoryItem{
		{Class: "organik", Confidence: 0.9, CreatedAt: "2025-02-10 08:30:00"},
		{Class: "campuran", Confidence: 0.6, CreatedAt: "2025-02-09 08:30:00"},
		{Class: "anorganik", Confidence: 0.7, CreatedAt: "2025-02-08 08:30:00"},
	}}
	svc := NewService(source, store, nil, WithClock(func() time.Time { return fixedNow }))

	res := svc.Run(context.Background())
	if !res.Applied || res.Err != nil {
		t.Fatalf("expected applied result, got %+v", res)
	}
	if got := source.limit.Load(); got != 2 {
		t.Fatalf("expected fetch limit 2, got %d", got)
	}
	snap := store.Snapshot()
	if len(snap) != 2 || snap[0].Label != "organik" || snap[1].Label != "campuran" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if res.Received != 3 || res.Stored != 2 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := history.New(kvstore.NewMemory(), history.DefaultCapacity, nil)
	source := &stubSource{items: []apiclient.HistoryItem{
		{ID: int64Ptr(2), Class: "organik", Confidence: 0.9, CreatedAt: "2025-02-10 08:30:00"},
		{ID: int64Ptr(1), PredictedClass: "campuran", Confidence: 0.6},
	}}
	svc := NewService(source, store, nil, WithClock(func() time.Time { return fixedNow }))

	svc.Run(context.Background())
	first := store.Snapshot()
	svc.Run(context.Background())
	if diff := cmp.Diff(first, store.Snapshot()); diff != "" {
		t.Fatalf("second run changed history (-first +second):\n%s", diff)
	}
}

func TestRunFailureLeavesHistoryUntouched(t *testing.T) {
	cases := map[string]*stubSource{
		"fetch error": {err: errors.New("connection refused")},
		"bad item": {items: []apiclient.HistoryItem{
			{Class: "organik", Confidence: 0.9},
			{Confidence: 0.3},
		}},
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			kv := kvstore.NewMemory()
			store := history.New(kv, history.DefaultCapacity, nil)
			if err := store.Add(prediction.Record{Label: "anorganik", Confidence: 0.4, Timestamp: fixedNow}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			before, _, _ := kv.Get(history.StorageKey)
			snapBefore := store.Snapshot()

			res := NewService(source, store, nil).Run(context.Background())
			if res.Applied {
				t.Fatal("expected run to fail")
			}
			if !errors.Is(res.Err, services.ErrReconciliation) || !services.Silent(res.Err) {
				t.Fatalf("expected silent reconciliation error, got %v", res.Err)
			}
			after, _, _ := kv.Get(history.StorageKey)
			if !bytes.Equal(before, after) {
				t.Fatalf("persisted history changed:\nbefore %s\nafter  %s", before, after)
			}
			if diff := cmp.Diff(snapBefore, store.Snapshot()); diff != "" {
				t.Fatalf("in-memory history changed:\n%s", diff)
			}
		})
	}
}

func TestRunCollapsesConcurrentCalls(t *testing.T) {
	store := history.New(kvstore.NewMemory(), history.DefaultCapacity, nil)
	source := &stubSource{
		items: []apiclient.HistoryItem{{Class: "organik", Confidence: 0.9}},
		gate:  make(chan struct{}),
	}
	svc := NewService(source, store, nil)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Run(context.Background())
		}(i)
	}
	// Let the goroutines pile up behind the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	if calls := source.calls.Load(); calls < 1 || calls > 4 {
		t.Fatalf("unexpected fetch count %d", calls)
	}
	for i, res := range results {
		if !res.Applied {
			t.Fatalf("result %d not applied: %+v", i, res)
		}
	}
}
