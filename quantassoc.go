// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CorrPoint is one component's correlation against one continuous
// trait: Pearson coefficient and its two-sided significance.
type CorrPoint struct {
	R float64
	P float64
}

// CorrelationResult maps continuous trait name to one CorrPoint per
// component. Non-numeric trait columns are skipped, not reported:
// they are covered by ComputeGroupAssociations instead.
type CorrelationResult map[string][]CorrPoint

// ComputeCorrelations correlates every component row of m with every
// continuous trait column of tt. Samples with a missing trait value
// are excluded pairwise.
func ComputeCorrelations(m *ContributionMatrix, tt *TraitTable) (CorrelationResult, error) {
	if tt.Len() != m.Samples {
		return nil, fmt.Errorf("%w: trait table has %d samples, contribution matrix has %d", ErrSampleCountMismatch, tt.Len(), m.Samples)
	}
	ret := CorrelationResult{}
	for _, col := range tt.continuousColumns() {
		points := make([]CorrPoint, m.Components)
		for comp := 0; comp < m.Components; comp++ {
			row := m.Row(comp)
			var xs, ys []float64
			for i, v := range col.Numeric {
				if math.IsNaN(v) {
					continue
				}
				xs = append(xs, row[i])
				ys = append(ys, v)
			}
			points[comp] = pearson(xs, ys)
		}
		ret[col.Name] = points
	}
	return ret, nil
}

// pearson computes the correlation coefficient and its two-sided
// p-value from the t distribution with n-2 degrees of freedom. Fewer
// than 3 paired observations, or a constant sequence, yields NaN.
func pearson(xs, ys []float64) CorrPoint {
	n := len(xs)
	if n < 3 {
		return CorrPoint{R: math.NaN(), P: math.NaN()}
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return CorrPoint{R: math.NaN(), P: math.NaN()}
	}
	if r >= 1 || r <= -1 {
		return CorrPoint{R: r, P: 0}
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return CorrPoint{R: r, P: 2 * dist.Survival(math.Abs(t))}
}
