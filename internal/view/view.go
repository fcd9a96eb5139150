package view

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"wastescan/internal/prediction"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

// SortKey selects the ordering of a view.
type SortKey string

const (
	SortRecency    SortKey = "recency"
	SortConfidence SortKey = "confidence"
	SortLabel      SortKey = "label"
)

// ParseSortKey accepts the canonical names plus the aliases "date" and "type".
// An empty value selects recency.
func ParseSortKey(value string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "recency", "date", "newest":
		return SortRecency, nil
	case "confidence":
		return SortConfidence, nil
	case "label", "type", "class":
		return SortLabel, nil
	default:
		return "", fmt.Errorf("unknown sort key %q (want recency, confidence, or label)", value)
	}
}

// Query selects and orders records.
type Query struct {
	Search   string
	Category string
	Sort     SortKey
}

// Stats aggregates the whole, unfiltered history.
type Stats struct {
	Total             int            `json:"total"`
	AverageConfidence float64        `json:"average_confidence"`
	CountsByLabel     map[string]int `json:"counts_by_label"`
	MostCommonLabel   string         `json:"most_common_label"`
}

// Result is a derived view.
type Result struct {
	Items []prediction.Record `json:"items"`
	Stats Stats               `json:"stats"`
}

// Apply filters and sorts records. The input slice is not modified. Sorting is
// stable, so equal keys keep history order.
func Apply(records []prediction.Record, q Query) Result {
	fold := cases.Fold()
	search := fold.String(strings.TrimSpace(q.Search))
	category := strings.TrimSpace(q.Category)
	if strings.EqualFold(category, CategoryAll) {
		category = ""
	}
	category = fold.String(category)

	items := make([]prediction.Record, 0, len(records))
	for _, rec := range records {
		label := fold.String(rec.Label)
		if search != "" && !strings.Contains(label, search) {
			continue
		}
		if category != "" && label != category {
			continue
		}
		items = append(items, rec.Clone())
	}

	sortRecords(items, q.Sort)
	return Result{Items: items, Stats: Compute(records)}
}

func sortRecords(items []prediction.Record, key SortKey) {
	switch key {
	case SortConfidence:
		slices.SortStableFunc(items, func(a, b prediction.Record) int {
			return cmp.Compare(b.Confidence, a.Confidence)
		})
	case SortLabel:
		col := collate.New(language.Und, collate.IgnoreCase)
		slices.SortStableFunc(items, func(a, b prediction.Record) int {
			return col.CompareString(a.Label, b.Label)
		})
	default:
		slices.SortStableFunc(items, func(a, b prediction.Record) int {
			return b.Timestamp.Compare(a.Timestamp)
		})
	}
}

// Compute derives statistics over records. The most common label breaks ties
// by choosing the lexicographically smallest label.
func Compute(records []prediction.Record) Stats {
	stats := Stats{CountsByLabel: map[string]int{}}
	if len(records) == 0 {
		return stats
	}

	var sum float64
	for _, rec := range records {
		stats.CountsByLabel[rec.Label]++
		sum += rec.Confidence
	}
	stats.Total = len(records)
	stats.AverageConfidence = sum / float64(len(records))

	best := -1
	for label, count := range stats.CountsByLabel {
		if count > best || (count == best && label < stats.MostCommonLabel) {
			best = count
			stats.MostCommonLabel = label
		}
	}
	return stats
}
