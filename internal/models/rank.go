package models

import (
	"fmt"
	"strings"
)

// Rank is a GCM career grade. The declaration order below is the seniority order.
type Rank string

const (
	RankThirdClass  Rank = "GCM3"
	RankSecondClass Rank = "GCM2"
	RankFirstClass  Rank = "GCM1"
	RankDistinct    Rank = "GCMD"
	RankSubInspetor Rank = "SUBINSP"
	RankInspetor    Rank = "INSP"
)

var rankOrder = []Rank{
	RankThirdClass,
	RankSecondClass,
	RankFirstClass,
	RankDistinct,
	RankSubInspetor,
	RankInspetor,
}

var rankLabels = map[Rank]string{
	RankThirdClass:  "GCM 3ª Classe",
	RankSecondClass: "GCM 2ª Classe",
	RankFirstClass:  "GCM 1ª Classe",
	RankDistinct:    "GCM Classe Distinta",
	RankSubInspetor: "Subinspetor",
	RankInspetor:    "Inspetor",
}

// Ranks returns the ordered rank set, most junior first
func Ranks() []Rank {
	out := make([]Rank, len(rankOrder))
	copy(out, rankOrder)
	return out
}

// ParseRank accepts a rank code (case-insensitive) or its display label
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(s)
	for _, r := range rankOrder {
		if strings.EqualFold(string(r), s) || strings.EqualFold(rankLabels[r], s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown rank %q", s)
}

func (r Rank) Label() string {
	if l, ok := rankLabels[r]; ok {
		return l
	}
	return string(r)
}

// Seniority is the zero-based position in the rank order, or -1 if unknown
func (r Rank) Seniority() int {
	for i, o := range rankOrder {
		if o == r {
			return i
		}
	}
	return -1
}
