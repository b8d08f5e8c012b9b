// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Supported output format tokens. FormatRaster renders bitmap
// artifacts, FormatVector scalable ones.
const (
	FormatRaster = "png"
	FormatVector = "pdf"
)

// Result kinds, used as artifact name prefixes in batch mode and as
// map keys in single mode.
const (
	kindQualitative  = "trait_association"
	kindQuantitative = "quantitative_trait_association"
	kindLinearModel  = "linear_model"
)

// RunConfig configures a grid sweep.
type RunConfig struct {
	OutputDir string
	Format    string // FormatRaster or FormatVector
	// Workers bounds the number of grid points computed
	// concurrently; 0 means GOMAXPROCS.
	Workers int
	// TwoSampleTest substitutes the 2-class group test; nil means
	// WelchTTest.
	TwoSampleTest TwoSampleTest
}

// ResultTable is the tabular form of one engine's result, as handed
// to a Presenter: rows are traits/groupings, columns are components
// (for the linear-model kind, a leading fit-score column), values are
// p-values with NaN marking NotApplicable/unestimable cells.
type ResultTable struct {
	Kind      string
	RowLabels []string
	ColLabels []string
	Values    [][]float64
}

// Presenter renders a result table into an artifact of the given
// format.
type Presenter interface {
	Render(t ResultTable, format string) ([]byte, error)
}

// Persister stores a rendered artifact at a path chosen by the
// caller.
type Persister interface {
	Save(path string, data []byte) error
}

// GridRunner drives the three association engines over a full
// parameter grid.
type GridRunner struct {
	Config RunConfig
}

// Run computes associations for every (subset, K, lambda) grid point
// of src and hands each rendered result to persister under
// <dir>/<format>/Subset<subset>/K<K>/. Grid points run concurrently
// on a bounded worker pool; configuration and input-shape problems
// abort before anything is written, and the first grid-point error
// cancels the sweep.
func (r *GridRunner) Run(ctx context.Context, src ContributionSource, tt *TraitTable, presenter Presenter, persister Persister) error {
	cfg := r.Config
	if fi, err := os.Stat(cfg.OutputDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirNotExist, cfg.OutputDir)
	}
	if cfg.Format != FormatRaster && cfg.Format != FormatVector {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
	if src.SampleCount() != tt.Len() {
		return fmt.Errorf("%w: trait table has %d samples, contribution source has %d", ErrSampleCountMismatch, tt.Len(), src.SampleCount())
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	subsets, ks, lambdas := src.Grid()
	todo := &throttle{Max: workers}
	for _, subset := range subsets {
		for _, k := range ks {
			dir := filepath.Join(cfg.OutputDir, cfg.Format, "Subset"+subset, fmt.Sprintf("K%d", k))
			// tolerate a concurrent (or previous) run
			// having created the same directory
			err := os.MkdirAll(dir, 0777)
			if err != nil {
				return err
			}
			for _, lambda := range lambdas {
				if err := todo.Err(); err != nil {
					break
				}
				subset, k, lambda := subset, k, lambda
				err := todo.Go(ctx, func() error {
					return r.runPoint(src, tt, subset, k, lambda, dir, presenter, persister)
				})
				if err != nil {
					todo.Report(err)
				}
			}
		}
	}
	return todo.Wait()
}

func (r *GridRunner) runPoint(src ContributionSource, tt *TraitTable, subset string, k int, lambda float64, dir string, presenter Presenter, persister Persister) error {
	tables, err := r.computePoint(src, tt, subset, k, lambda)
	if err != nil {
		return err
	}
	for _, t := range tables {
		b, err := presenter.Render(t, r.Config.Format)
		if err != nil {
			return fmt.Errorf("render %s for %s: %w", t.Kind, GridKey{subset, k, lambda}, err)
		}
		name := fmt.Sprintf("%s_heatmap_lambda%g.%s", t.Kind, lambda, r.Config.Format)
		if t.Kind == kindQuantitative {
			name = fmt.Sprintf("%s_lambda%g.%s", t.Kind, lambda, r.Config.Format)
		}
		err = persister.Save(filepath.Join(dir, name), b)
		if err != nil {
			return err
		}
	}
	log.Infof("done: %s", GridKey{subset, k, lambda})
	return nil
}

// RunSingle computes one explicit grid point and returns the three
// rendered artifacts keyed "linear model", "qualitative",
// "quantitative", without persisting anything.
func (r *GridRunner) RunSingle(ctx context.Context, src ContributionSource, tt *TraitTable, subset string, k int, lambda float64, presenter Presenter) (map[string][]byte, error) {
	if r.Config.Format != FormatRaster && r.Config.Format != FormatVector {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Config.Format)
	}
	if src.SampleCount() != tt.Len() {
		return nil, fmt.Errorf("%w: trait table has %d samples, contribution source has %d", ErrSampleCountMismatch, tt.Len(), src.SampleCount())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tables, err := r.computePoint(src, tt, subset, k, lambda)
	if err != nil {
		return nil, err
	}
	keys := map[string]string{
		kindQualitative:  "qualitative",
		kindQuantitative: "quantitative",
		kindLinearModel:  "linear model",
	}
	ret := map[string][]byte{}
	for _, t := range tables {
		b, err := presenter.Render(t, r.Config.Format)
		if err != nil {
			return nil, fmt.Errorf("render %s for %s: %w", t.Kind, GridKey{subset, k, lambda}, err)
		}
		ret[keys[t.Kind]] = b
	}
	return ret, nil
}

func (r *GridRunner) computePoint(src ContributionSource, tt *TraitTable, subset string, k int, lambda float64) ([]ResultTable, error) {
	m, err := src.Contributions(subset, k, lambda)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("grid point %s: %w", GridKey{subset, k, lambda}, err)
	}
	assoc, err := ComputeGroupAssociations(m, tt, r.Config.TwoSampleTest)
	if err != nil {
		return nil, err
	}
	corr, err := ComputeCorrelations(m, tt)
	if err != nil {
		return nil, err
	}
	regr, err := ComputeRegression(m, tt)
	if err != nil {
		return nil, err
	}
	return []ResultTable{
		qualitativeTable(assoc, m.Components),
		quantitativeTable(corr, m.Components),
		linearModelTable(regr, m.Components),
	}, nil
}

func componentLabels(k int) []string {
	labels := make([]string, k)
	for i := range labels {
		labels[i] = fmt.Sprintf("LMC%d", i+1)
	}
	return labels
}

func qualitativeTable(assoc AssociationResult, k int) ResultTable {
	t := ResultTable{Kind: kindQualitative, ColLabels: componentLabels(k)}
	names := make([]string, 0, len(assoc))
	for name := range assoc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row := make([]float64, k)
		if g := assoc[name]; g.NotApplicable {
			for i := range row {
				row[i] = math.NaN()
			}
		} else {
			copy(row, g.P)
		}
		t.RowLabels = append(t.RowLabels, name)
		t.Values = append(t.Values, row)
	}
	return t
}

func quantitativeTable(corr CorrelationResult, k int) ResultTable {
	t := ResultTable{Kind: kindQuantitative, ColLabels: componentLabels(k)}
	names := make([]string, 0, len(corr))
	for name := range corr {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row := make([]float64, k)
		for i, pt := range corr[name] {
			row[i] = pt.P
		}
		t.RowLabels = append(t.RowLabels, name)
		t.Values = append(t.Values, row)
	}
	return t
}

func linearModelTable(regr RegressionResult, k int) ResultTable {
	t := ResultTable{Kind: kindLinearModel, ColLabels: append([]string{"AIC"}, componentLabels(k)...)}
	names := make([]string, 0, len(regr))
	for name := range regr {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row := make([]float64, k+1)
		if r := regr[name]; r.NotApplicable {
			for i := range row {
				row[i] = math.NaN()
			}
		} else {
			row[0] = r.FitScore
			copy(row[1:], r.P)
		}
		t.RowLabels = append(t.RowLabels, name)
		t.Values = append(t.Values, row)
	}
	return t
}
