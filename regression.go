// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"fmt"
	"io"
	stdlog "log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	gaussianConfig = &glm.Config{
		Family:         glm.NewFamily(glm.GaussianFamily),
		FitMethod:      "IRLS",
		ConcurrentIRLS: 1000,
		Log:            stdlog.New(io.Discard, "", 0),
	}
	binomialConfig = &glm.Config{
		Family:         glm.NewFamily(glm.BinomialFamily),
		FitMethod:      "IRLS",
		ConcurrentIRLS: 1000,
		Log:            stdlog.New(io.Discard, "", 0),
	}
)

// RegressionRow is one trait's regression result: an
// information-criterion fit score (lower is better) and one
// coefficient p-value per component. Components whose coefficient
// could not be estimated (collinear with the rest of the design, or
// constant) are NaN. NotApplicable marks a degenerate design that was
// not fitted at all.
type RegressionRow struct {
	NotApplicable bool
	FitScore      float64
	P             []float64
}

// RegressionResult maps trait name to its regression row.
type RegressionResult map[string]RegressionRow

// ComputeRegression fits, for each trait column of tt, a regression
// of the trait on the full component vector of m: ordinary least
// squares (gaussian GLM) for continuous traits, logistic (binomial
// GLM, one-vs-rest on the most frequent level) for categorical traits
// with more than 2 levels. Categorical traits with exactly 2 levels,
// or with a distinct-level count equal to the component count, are
// non-identifiable designs and marked NotApplicable. A failed fit
// likewise degrades to NotApplicable; it never aborts the remaining
// traits.
func ComputeRegression(m *ContributionMatrix, tt *TraitTable) (RegressionResult, error) {
	if tt.Len() != m.Samples {
		return nil, fmt.Errorf("%w: trait table has %d samples, contribution matrix has %d", ErrSampleCountMismatch, tt.Len(), m.Samples)
	}
	ret := RegressionResult{}
	for _, col := range tt.Columns {
		if col.Kind != Continuous && (len(col.Levels) == 2 || len(col.Levels) == m.Components || len(col.Levels) < 2) {
			ret[col.Name] = RegressionRow{NotApplicable: true}
			continue
		}
		outcome, keep := regressionOutcome(col)
		if n := col.missingCount(); n > 0 {
			log.Debugf("trait %q: excluding %d samples with missing values from regression", col.Name, n)
		}
		ret[col.Name] = fitTrait(m, col, outcome, keep)
	}
	return ret, nil
}

// regressionOutcome builds the response vector for col and a
// per-sample inclusion mask excluding missing values. Categorical
// responses are coded 1 for the most frequent level, 0 otherwise.
func regressionOutcome(col TraitColumn) (outcome []float64, keep []bool) {
	if col.Kind == Continuous {
		keep = make([]bool, len(col.Numeric))
		for i, v := range col.Numeric {
			if !math.IsNaN(v) {
				keep[i] = true
				outcome = append(outcome, v)
			}
		}
		return
	}
	counts := map[string]int{}
	for _, l := range col.Labels {
		if l != "" {
			counts[l]++
		}
	}
	ref := col.Levels[0]
	for _, l := range col.Levels[1:] {
		if counts[l] > counts[ref] {
			ref = l
		}
	}
	keep = make([]bool, len(col.Labels))
	for i, l := range col.Labels {
		if l == "" {
			continue
		}
		keep[i] = true
		if l == ref {
			outcome = append(outcome, 1)
		} else {
			outcome = append(outcome, 0)
		}
	}
	return
}

// fitTrait fits one GLM. Contribution columns lie on the simplex, so
// the full design (intercept plus all K components) is always rank
// deficient; estimable components are chosen greedily by rank and the
// rest reported as NaN, the way R's lm reports aliased coefficients
// as NA.
func fitTrait(m *ContributionMatrix, col TraitColumn, outcome []float64, keep []bool) (row RegressionRow) {
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular
			// with condition number +Inf" from IRLS
			row = RegressionRow{NotApplicable: true}
		}
	}()

	nobs := len(outcome)
	row.P = make([]float64, m.Components)
	for i := range row.P {
		row.P[i] = math.NaN()
	}
	if nobs < m.Components+2 {
		return RegressionRow{NotApplicable: true}
	}

	constants := make([]float64, nobs)
	for i := range constants {
		constants[i] = 1
	}
	chosen := [][]float64{constants}
	var chosenComps []int
	for comp := 0; comp < m.Components; comp++ {
		series := make([]float64, 0, nobs)
		for i, v := range m.Row(comp) {
			if keep[i] {
				series = append(series, v)
			}
		}
		if extendsRank(chosen, series) {
			chosen = append(chosen, series)
			chosenComps = append(chosenComps, comp)
		}
	}

	data := make([][]statmodel.Dtype, 0, len(chosen)+1)
	names := make([]string, 0, len(chosen)+1)
	data = append(data, outcome, chosen[0])
	names = append(names, "outcome", "constants")
	for i, comp := range chosenComps {
		series := append([]float64(nil), chosen[i+1]...)
		normalize(series)
		data = append(data, series)
		names = append(names, fmt.Sprintf("lmc%d", comp+1))
	}
	dataset := statmodel.NewDataset(data, names)

	config := gaussianConfig
	if col.Kind != Continuous {
		config = binomialConfig
	}
	model, err := glm.NewGLM(dataset, "outcome", names[1:], config)
	if err != nil {
		log.Debugf("trait %q: %s", col.Name, err)
		return RegressionRow{NotApplicable: true}
	}
	result := model.Fit()
	row.FitScore = 2*float64(len(names[1:])) - 2*result.LogLike()

	params := result.Params()
	stderr := result.StdErr()
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	for i, comp := range chosenComps {
		// params[0] is the constants term
		b, se := params[i+1], stderr[i+1]
		if se == 0 || math.IsNaN(se) {
			continue
		}
		row.P[comp] = 2 * normal.Survival(math.Abs(b/se))
	}
	return
}

// extendsRank reports whether appending candidate to cols increases
// the column rank of the design matrix.
func extendsRank(cols [][]float64, candidate []float64) bool {
	nrow := len(candidate)
	ncol := len(cols) + 1
	dense := mat.NewDense(nrow, ncol, nil)
	for j, c := range cols {
		dense.SetCol(j, c)
	}
	dense.SetCol(ncol-1, candidate)
	var svd mat.SVD
	if !svd.Factorize(dense, mat.SVDThin) {
		return false
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return false
	}
	tol := float64(nrow) * values[0] * 1e-12
	rank := 0
	for _, v := range values {
		if v > tol {
			rank++
		}
	}
	return rank == ncol
}

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}
