// Package pipeline turns raw extracted items into the final notification
// list: dedup by identity, filter against push history and quality
// thresholds, sort by engagement. Process is a pure function of its inputs;
// the only state a Pipeline carries is its configured thresholds.
package pipeline

import (
	"log/slog"
	"regexp"
	"sort"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

const (
	DefaultMinVotes    = 10
	DefaultMinComments = 5
)

// flashSalePattern matches "前N名" (first-N-winners) promotional claims,
// which are lottery-style noise rather than deals. Digit-specific on
// purpose: "前三名" with a CJK numeral is not excluded.
var flashSalePattern = regexp.MustCompile(`(?i)前\d+名`)

type Pipeline struct {
	minVotes    int
	minComments int
}

func New() *Pipeline {
	return &Pipeline{
		minVotes:    DefaultMinVotes,
		minComments: DefaultMinComments,
	}
}

// SetThresholds overwrites only the thresholds that are provided; a nil
// argument leaves the current value in place.
func (p *Pipeline) SetThresholds(minVotes, minComments *int) {
	if minVotes != nil {
		p.minVotes = *minVotes
	}
	if minComments != nil {
		p.minComments = *minComments
	}
	slog.Info("Filter thresholds updated", "min_votes", p.minVotes, "min_comments", p.minComments)
}

// Process runs dedup, filter and sort in that order.
func (p *Pipeline) Process(raw []models.DealItem, pushedIDs map[string]struct{}) []models.DealItem {
	unique := Dedup(raw)
	slog.Info("Deduplicated items", "before", len(raw), "after", len(unique))

	filtered := p.filter(unique, pushedIDs)
	slog.Info("Filtered items", "before", len(unique), "after", len(filtered))

	return sortByEngagement(filtered)
}

// Dedup keeps the first occurrence per ID, preserving input order. Items
// without an ID cannot participate in identity and are dropped.
func Dedup(items []models.DealItem) []models.DealItem {
	seen := make(map[string]struct{}, len(items))
	unique := make([]models.DealItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

// filter keeps items that pass every condition: never pushed before, both
// engagement thresholds met, and not a flash-sale promotion.
func (p *Pipeline) filter(items []models.DealItem, pushedIDs map[string]struct{}) []models.DealItem {
	filtered := make([]models.DealItem, 0, len(items))
	for _, item := range items {
		if _, pushed := pushedIDs[item.ID]; pushed {
			continue
		}
		if item.Votes < p.minVotes {
			continue
		}
		if item.Comments < p.minComments {
			continue
		}
		if flashSalePattern.MatchString(item.Title) {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// sortByEngagement orders by votes descending, ties broken by comments
// descending, otherwise stable.
func sortByEngagement(items []models.DealItem) []models.DealItem {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Votes != items[j].Votes {
			return items[i].Votes > items[j].Votes
		}
		return items[i].Comments > items[j].Comments
	})
	return items
}
