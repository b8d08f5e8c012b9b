// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"fmt"
	"math"
	"sort"
)

// TraitKind tags a trait column's semantics, determined once when the
// column is built.
type TraitKind int

const (
	Continuous TraitKind = iota
	Binary               // categorical, exactly 2 distinct levels
	MultiLevel           // categorical, any other level count
)

func (k TraitKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	default:
		return "multilevel"
	}
}

// TraitColumn is one phenotype trait, one value per sample. For
// continuous columns missing values are NaN; for categorical columns
// they are "".
type TraitColumn struct {
	Name    string
	Kind    TraitKind
	Numeric []float64
	Labels  []string
	Levels  []string // distinct non-missing labels, sorted
}

// NewContinuousColumn builds a continuous trait column. NaN marks a
// missing value.
func NewContinuousColumn(name string, values []float64) TraitColumn {
	return TraitColumn{Name: name, Kind: Continuous, Numeric: values}
}

// NewCategoricalColumn builds a categorical trait column, tagging it
// Binary when it has exactly 2 distinct non-missing levels. "" marks
// a missing value.
func NewCategoricalColumn(name string, labels []string) TraitColumn {
	seen := map[string]bool{}
	var levels []string
	for _, l := range labels {
		if l != "" && !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	sort.Strings(levels)
	kind := MultiLevel
	if len(levels) == 2 {
		kind = Binary
	}
	return TraitColumn{Name: name, Kind: kind, Labels: labels, Levels: levels}
}

// TraitTable is tabular phenotype data: one row per sample, one
// column per trait, sample order aligned positionally with the
// columns of any contribution matrix it is compared against.
type TraitTable struct {
	SampleIDs []string
	Columns   []TraitColumn
}

// Len returns the number of samples.
func (tt *TraitTable) Len() int { return len(tt.SampleIDs) }

// AddColumn appends col, checking its length against the sample
// count.
func (tt *TraitTable) AddColumn(col TraitColumn) error {
	n := tt.Len()
	switch col.Kind {
	case Continuous:
		if len(col.Numeric) != n {
			return fmt.Errorf("trait %q has %d values, want %d", col.Name, len(col.Numeric), n)
		}
	default:
		if len(col.Labels) != n {
			return fmt.Errorf("trait %q has %d values, want %d", col.Name, len(col.Labels), n)
		}
	}
	tt.Columns = append(tt.Columns, col)
	return nil
}

// GroupClass is one label class of a grouping, holding the sample
// indices assigned to it.
type GroupClass struct {
	Label   string
	Members []int
}

// Grouping is a named partition of sample indices into label
// classes. Samples with a missing trait value appear in no class.
type Grouping struct {
	Name    string
	Classes []GroupClass
}

// Grouping derives the sample partition for a categorical column.
func (col TraitColumn) Grouping() Grouping {
	g := Grouping{Name: col.Name}
	for _, level := range col.Levels {
		var members []int
		for i, l := range col.Labels {
			if l == level {
				members = append(members, i)
			}
		}
		if len(members) > 0 {
			g.Classes = append(g.Classes, GroupClass{Label: level, Members: members})
		}
	}
	return g
}

// Groupings derives one grouping per categorical column, in column
// order.
func (tt *TraitTable) Groupings() []Grouping {
	var ret []Grouping
	for _, col := range tt.Columns {
		if col.Kind == Continuous {
			continue
		}
		ret = append(ret, col.Grouping())
	}
	return ret
}

// continuousColumns returns the continuous trait columns, in column
// order. Non-numeric columns are not represented here at all: they
// are covered by Groupings instead, and a column that is neither is
// skipped silently (a deliberate policy carried over from the
// original pipeline, documented in the README).
func (tt *TraitTable) continuousColumns() []TraitColumn {
	var ret []TraitColumn
	for _, col := range tt.Columns {
		if col.Kind == Continuous {
			ret = append(ret, col)
		}
	}
	return ret
}

// missingCount returns the number of missing values in col.
func (col TraitColumn) missingCount() int {
	n := 0
	if col.Kind == Continuous {
		for _, v := range col.Numeric {
			if math.IsNaN(v) {
				n++
			}
		}
		return n
	}
	for _, l := range col.Labels {
		if l == "" {
			n++
		}
	}
	return n
}
