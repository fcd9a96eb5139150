package view

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"wastescan/internal/history"
	"wastescan/internal/kvstore"
	"wastescan/internal/prediction"
)

var base = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func record(label string, confidence float64, minutes int) prediction.Record {
	return prediction.Record{Label: label, Confidence: confidence, Timestamp: base.Add(time.Duration(minutes) * time.Minute)}
}

func labelsOf(records []prediction.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		in   string
		want SortKey
	}{
		{"", SortRecency},
		{"date", SortRecency},
		{"Recency", SortRecency},
		{"confidence", SortConfidence},
		{"type", SortLabel},
		{"label", SortLabel},
	}
	for _, tt := range tests {
		got, err := ParseSortKey(tt.in)
		if err != nil {
			t.Fatalf("ParseSortKey(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSortKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseSortKey("size"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestApplyFiltersAndSorts(t *testing.T) {
	records := []prediction.Record{
		record("organik", 0.70, 3),
		record("anorganik", 0.90, 1),
		record("Organik", 0.95, 2),
		record("campuran", 0.50, 4),
	}
	original := prediction.CloneAll(records)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"recency", Query{Sort: SortRecency}, []string{"campuran", "organik", "Organik", "anorganik"}},
		{"confidence", Query{Sort: SortConfidence}, []string{"Organik", "anorganik", "organik", "campuran"}},
		{"label", Query{Sort: SortLabel}, []string{"anorganik", "campuran", "organik", "Organik"}},
		{"search is case-insensitive substring", Query{Search: "ORGAN", Sort: SortRecency}, []string{"organik", "Organik", "anorganik"}},
		{"category is exact", Query{Category: "organik", Sort: SortConfidence}, []string{"Organik", "organik"}},
		{"category all", Query{Category: "All", Sort: SortConfidence}, []string{"Organik", "anorganik", "organik", "campuran"}},
		{"no match", Query{Search: "kaca"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labelsOf(Apply(records, tt.query).Items)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("labels mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if diff := cmp.Diff(original, records); diff != "" {
		t.Fatalf("input mutated:\n%s", diff)
	}
}

func TestSortIsStable(t *testing.T) {
	same := base.Add(time.Hour)
	tests := []struct {
		name    string
		key     SortKey
		records []prediction.Record
		want    []string
	}{
		{
			name: "equal confidence",
			key:  SortConfidence,
			records: []prediction.Record{
				{Label: "a", Confidence: 0.5, Filename: "first"},
				{Label: "b", Confidence: 0.5, Filename: "second"},
				{Label: "c", Confidence: 0.5, Filename: "third"},
			},
			want: []string{"first", "second", "third"},
		},
		{
			name: "equal timestamps",
			key:  SortRecency,
			records: []prediction.Record{
				{Label: "a", Confidence: 0.5, Timestamp: same, Filename: "first"},
				{Label: "b", Confidence: 0.5, Timestamp: base, Filename: "older"},
				{Label: "c", Confidence: 0.5, Timestamp: same, Filename: "second"},
				{Label: "d", Confidence: 0.5, Timestamp: same, Filename: "third"},
			},
			want: []string{"first", "second", "third", "older"},
		},
		{
			name: "labels equal ignoring case",
			key:  SortLabel,
			records: []prediction.Record{
				{Label: "Organik", Confidence: 0.5, Filename: "first"},
				{Label: "organik", Confidence: 0.5, Filename: "second"},
				{Label: "campuran", Confidence: 0.5, Filename: "mixed"},
				{Label: "ORGANIK", Confidence: 0.5, Filename: "third"},
			},
			want: []string{"mixed", "first", "second", "third"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(tc.records, Query{Sort: tc.key}).Items
			names := make([]string, len(got))
			for i, r := range got {
				names[i] = r.Filename
			}
			if diff := cmp.Diff(tc.want, names); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatsIgnoreFilters(t *testing.T) {
	records := []prediction.Record{
		record("organik", 0.9, 0),
		record("organik", 0.7, 1),
		record("anorganik", 0.5, 2),
	}
	res := Apply(records, Query{Category: "anorganik"})
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 filtered item, got %d", len(res.Items))
	}
	want := Stats{
		Total:             3,
		AverageConfidence: (0.9 + 0.7 + 0.5) / 3,
		CountsByLabel:     map[string]int{"organik": 2, "anorganik": 1},
		MostCommonLabel:   "organik",
	}
	if diff := cmp.Diff(want, res.Stats, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStatsEmpty(t *testing.T) {
	got := Compute(nil)
	if got.Total != 0 || got.AverageConfidence != 0 || got.MostCommonLabel != "" || len(got.CountsByLabel) != 0 {
		t.Fatalf("unexpected empty stats %+v", got)
	}
}

func TestHistoryToViewScenario(t *testing.T) {
	store := history.New(kvstore.NewMemory(), history.DefaultCapacity, nil)
	if err := store.Add(prediction.Record{Label: "organik", Confidence: 0.95, Timestamp: base}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(prediction.Record{Label: "campuran", Confidence: 0.50, Timestamp: base.Add(time.Minute)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := Apply(store.Snapshot(), Query{Search: "", Category: CategoryAll, Sort: SortConfidence})
	if diff := cmp.Diff([]string{"organik", "campuran"}, labelsOf(res.Items)); diff != "" {
		t.Fatalf("order mismatch:\n%s", diff)
	}
	if res.Stats.MostCommonLabel != "campuran" {
		t.Fatalf("most common = %q, want campuran", res.Stats.MostCommonLabel)
	}
}
