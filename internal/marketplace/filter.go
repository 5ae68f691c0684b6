package marketplace

import (
	"sort"
	"strings"

	"robot-market/internal/models"
)

// SortOption orders catalog cards.
type SortOption string

const (
	SortNewest     SortOption = "newest"
	SortPriceAsc   SortOption = "price-asc"
	SortPriceDesc  SortOption = "price-desc"
	SortRatingDesc SortOption = "rating-desc"
)

const (
	DefaultMinPrice = 0
	DefaultMaxPrice = 600
)

// Filter is the catalog search state.
type Filter struct {
	MinPrice  float64
	MaxPrice  float64
	Query     string
	Tags      []string
	MinRating float64
	Sort      SortOption
}

// DefaultFilter matches every card priced within the default range, newest first.
func DefaultFilter() Filter {
	return Filter{MinPrice: DefaultMinPrice, MaxPrice: DefaultMaxPrice, Sort: SortNewest}
}

// ParseSort maps a query value to a SortOption, falling back to newest.
func ParseSort(v string) SortOption {
	switch SortOption(v) {
	case SortPriceAsc, SortPriceDesc, SortRatingDesc:
		return SortOption(v)
	}
	return SortNewest
}

// Apply returns the cards matching f in the requested order. The input is not modified.
func Apply(cards []models.RobotCard, f Filter) []models.RobotCard {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.RobotCard, 0, len(cards))
	for _, card := range cards {
		if card.Price < f.MinPrice || card.Price > f.MaxPrice {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(card.Title), query) &&
			!strings.Contains(strings.ToLower(card.Description), query) {
			continue
		}
		if !hasAllTags(card.Tags, f.Tags) {
			continue
		}
		if card.Rating < f.MinRating {
			continue
		}
		out = append(out, card)
	}

	sort.SliceStable(out, func(i, j int) bool {
		switch f.Sort {
		case SortPriceAsc:
			return out[i].Price < out[j].Price
		case SortPriceDesc:
			return out[i].Price > out[j].Price
		case SortRatingDesc:
			return out[i].Rating > out[j].Rating
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out
}

// AllTags returns the distinct tags of cards in first-seen order.
func AllTags(cards []models.RobotCard) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, card := range cards {
		for _, tag := range card.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
