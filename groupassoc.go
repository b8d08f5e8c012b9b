// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TwoSampleTest compares two numeric sequences and returns a
// two-sided p-value. The default is WelchTTest; substitute any
// function with the same signature to change the 2-class test.
type TwoSampleTest func(a, b []float64) float64

// GroupPValues holds one grouping's result: either a p-value per
// component, or the NotApplicable marker for a degenerate grouping
// (fewer than 2 non-empty classes).
type GroupPValues struct {
	NotApplicable bool
	P             []float64
}

// AssociationResult maps grouping name to per-component significance.
type AssociationResult map[string]GroupPValues

// ComputeGroupAssociations tests every component of m against every
// grouping derivable from tt's categorical columns. Groupings with
// exactly 2 classes use test (two-sided); groupings with more use
// Kruskal-Wallis. Samples outside all classes of a grouping are
// excluded from that grouping's tests.
func ComputeGroupAssociations(m *ContributionMatrix, tt *TraitTable, test TwoSampleTest) (AssociationResult, error) {
	if tt.Len() != m.Samples {
		return nil, fmt.Errorf("%w: trait table has %d samples, contribution matrix has %d", ErrSampleCountMismatch, tt.Len(), m.Samples)
	}
	if test == nil {
		test = WelchTTest
	}
	ret := AssociationResult{}
	for _, grouping := range tt.Groupings() {
		if len(grouping.Classes) < 2 {
			ret[grouping.Name] = GroupPValues{NotApplicable: true}
			continue
		}
		pvalues := make([]float64, m.Components)
		for comp := 0; comp < m.Components; comp++ {
			row := m.Row(comp)
			groups := make([][]float64, len(grouping.Classes))
			for gi, class := range grouping.Classes {
				vals := make([]float64, len(class.Members))
				for vi, si := range class.Members {
					vals[vi] = row[si]
				}
				groups[gi] = vals
			}
			if len(groups) == 2 {
				pvalues[comp] = test(groups[0], groups[1])
			} else {
				pvalues[comp] = kruskalWallis(groups)
			}
		}
		ret[grouping.Name] = GroupPValues{P: pvalues}
	}
	return ret, nil
}

// WelchTTest is the default two-sample test: Welch's unequal-variance
// t-test, two-sided. Degenerate inputs where no sampling variance can
// be estimated return 1 for equal means and 0 otherwise; groups with
// fewer than 2 members return NaN.
func WelchTTest(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return math.NaN()
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	sa := va / float64(len(a))
	sb := vb / float64(len(b))
	se := math.Sqrt(sa + sb)
	if se == 0 {
		if ma == mb {
			return 1
		}
		return 0
	}
	t := (ma - mb) / se
	// Welch-Satterthwaite degrees of freedom
	df := (sa + sb) * (sa + sb) / (sa*sa/float64(len(a)-1) + sb*sb/float64(len(b)-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// PermutationTest returns a substitute two-sample test that
// estimates the two-sided p-value of the difference in means by
// shuffling group labels rounds times. Useful when the contribution
// distributions are too skewed for WelchTTest's normality assumption.
func PermutationTest(rounds int, seed uint64) TwoSampleTest {
	return func(a, b []float64) float64 {
		if len(a) == 0 || len(b) == 0 {
			return math.NaN()
		}
		rng := rand.New(rand.NewSource(seed))
		pooled := append(append([]float64(nil), a...), b...)
		observed := math.Abs(stat.Mean(a, nil) - stat.Mean(b, nil))
		hits := 0
		for i := 0; i < rounds; i++ {
			rng.Shuffle(len(pooled), func(x, y int) {
				pooled[x], pooled[y] = pooled[y], pooled[x]
			})
			d := math.Abs(stat.Mean(pooled[:len(a)], nil) - stat.Mean(pooled[len(a):], nil))
			if d >= observed {
				hits++
			}
		}
		// add-one smoothing keeps the estimate away from an
		// exact 0 that rounds could not support
		return float64(hits+1) / float64(rounds+1)
	}
}

// kruskalWallis computes the Kruskal-Wallis rank test p-value over
// >=2 groups, with tie correction. If all pooled values are tied
// there is nothing to rank and the p-value is 1.
func kruskalWallis(groups [][]float64) float64 {
	type obs struct {
		v     float64
		group int
	}
	var pooled []obs
	for gi, g := range groups {
		for _, v := range g {
			pooled = append(pooled, obs{v, gi})
		}
	}
	n := len(pooled)
	if n < 2 {
		return math.NaN()
	}
	sort.Slice(pooled, func(i, j int) bool { return pooled[i].v < pooled[j].v })

	// midranks, plus the tie-correction sum of t^3-t
	ranks := make([]float64, n)
	tieSum := 0.0
	for i := 0; i < n; {
		j := i
		for j < n && pooled[j].v == pooled[i].v {
			j++
		}
		mid := float64(i+j+1) / 2 // 1-based average rank of the tied run
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		t := float64(j - i)
		tieSum += t*t*t - t
		i = j
	}

	rankSum := make([]float64, len(groups))
	for i, o := range pooled {
		rankSum[o.group] += ranks[i]
	}
	h := 0.0
	for gi, g := range groups {
		if len(g) == 0 {
			continue
		}
		h += rankSum[gi] * rankSum[gi] / float64(len(g))
	}
	nf := float64(n)
	h = 12/(nf*(nf+1))*h - 3*(nf+1)
	correction := 1 - tieSum/(nf*nf*nf-nf)
	if correction <= 0 {
		// every pooled value identical
		return 1
	}
	h /= correction
	dist := distuv.ChiSquared{K: float64(len(groups) - 1)}
	return dist.Survival(h)
}
