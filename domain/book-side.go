package domain

import (
	"sort"
)

type Side string

const (
	SideBid Side = "bids"
	SideAsk Side = "asks"
)

// BookSide maps a canonical price key to the level last written for it.
// It has no order of its own; Levels sorts on demand.
type BookSide struct {
	side   Side
	levels map[string]PriceLevel
}

func NewBookSide(side Side) *BookSide {
	return &BookSide{
		side:   side,
		levels: make(map[string]PriceLevel),
	}
}

func (s *BookSide) Side() Side {
	return s.side
}

func (s *BookSide) Len() int {
	return len(s.levels)
}

func (s *BookSide) IsEmpty() bool {
	return len(s.levels) == 0
}

func (s *BookSide) Get(price string) (PriceLevel, bool) {
	level, ok := s.levels[price]
	return level, ok
}

// Reset replaces the whole side with levels, written through as received.
func (s *BookSide) Reset(levels []PriceLevel) {
	s.levels = make(map[string]PriceLevel, len(levels))
	for _, level := range levels {
		s.levels[level.Key()] = level
	}
}

// Merge applies a delta. A zero size removes the price, anything else
// inserts or overwrites it. Merging into an empty side does nothing because
// there is no baseline to apply the delta to.
func (s *BookSide) Merge(levels []PriceLevel) {
	if s.IsEmpty() {
		return
	}

	for _, level := range levels {
		if level.IsTombstone() {
			delete(s.levels, level.Key())
			continue
		}
		s.levels[level.Key()] = level
	}
}

// Levels returns the side best price first: bids descending, asks ascending.
func (s *BookSide) Levels() []PriceLevel {
	result := make([]PriceLevel, 0, len(s.levels))
	for _, level := range s.levels {
		result = append(result, level)
	}

	if s.side == SideBid {
		sort.Slice(result, func(i, j int) bool {
			return result[i].Price.GreaterThan(result[j].Price)
		})
	} else {
		sort.Slice(result, func(i, j int) bool {
			return result[i].Price.LessThan(result[j].Price)
		})
	}

	return result
}
