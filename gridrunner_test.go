// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/check.v1"
)

type gridRunnerSuite struct{}

var _ = check.Suite(&gridRunnerSuite{})

// stubPresenter renders a table as its deterministic textual form, so
// artifact bytes can be compared across runs without a python
// interpreter.
type stubPresenter struct{}

func (stubPresenter) Render(t ResultTable, format string) ([]byte, error) {
	return []byte(fmt.Sprintf("%s|%v|%v|%v", format, t.Kind, t.RowLabels, t.Values)), nil
}

func gridFixture(c *check.C) (*DeconResult, *TraitTable) {
	src := &DeconResult{}
	for _, lambda := range []float64{0.01, 0.1} {
		err := src.Add(GridKey{"1", 3, lambda}, specimen())
		c.Assert(err, check.IsNil)
	}
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	err := tt.AddColumn(NewCategoricalColumn("treatment", []string{"A", "A", "A", "A", "B", "B"}))
	c.Assert(err, check.IsNil)
	err = tt.AddColumn(NewContinuousColumn("age", []float64{41, 39, 50, 62, 44, 58}))
	c.Assert(err, check.IsNil)
	return src, tt
}

func (s *gridRunnerSuite) TestRunWritesTree(c *check.C) {
	src, tt := gridFixture(c)
	tmpdir := c.MkDir()
	runner := &GridRunner{Config: RunConfig{OutputDir: tmpdir, Format: FormatRaster, Workers: 2}}
	err := runner.Run(context.Background(), src, tt, stubPresenter{}, FSPersister{})
	c.Assert(err, check.IsNil)

	for _, lambda := range []string{"0.01", "0.1"} {
		for _, name := range []string{
			"trait_association_heatmap_lambda" + lambda + ".png",
			"quantitative_trait_association_lambda" + lambda + ".png",
			"linear_model_heatmap_lambda" + lambda + ".png",
		} {
			_, err := os.Stat(filepath.Join(tmpdir, "png", "Subset1", "K3", name))
			c.Check(err, check.IsNil, check.Commentf("%s", name))
		}
	}
}

func (s *gridRunnerSuite) TestRunIdempotent(c *check.C) {
	src, tt := gridFixture(c)
	tmpdir := c.MkDir()
	runner := &GridRunner{Config: RunConfig{OutputDir: tmpdir, Format: FormatVector}}

	err := runner.Run(context.Background(), src, tt, stubPresenter{}, FSPersister{})
	c.Assert(err, check.IsNil)
	first := snapshotTree(c, tmpdir)
	c.Check(len(first) > 0, check.Equals, true)

	// rerunning into the same (already populated) tree must not
	// fail on existing directories, and must reproduce the same
	// bytes
	err = runner.Run(context.Background(), src, tt, stubPresenter{}, FSPersister{})
	c.Assert(err, check.IsNil)
	c.Check(snapshotTree(c, tmpdir), check.DeepEquals, first)
}

func snapshotTree(c *check.C, dir string) map[string]string {
	ret := map[string]string{}
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		ret[rel] = string(b)
		return nil
	})
	c.Assert(err, check.IsNil)
	return ret
}

func (s *gridRunnerSuite) TestConfigErrors(c *check.C) {
	src, tt := gridFixture(c)

	runner := &GridRunner{Config: RunConfig{OutputDir: "/nonexistent/traitassoc", Format: FormatRaster}}
	err := runner.Run(context.Background(), src, tt, stubPresenter{}, FSPersister{})
	c.Check(errors.Is(err, ErrDirNotExist), check.Equals, true)

	runner = &GridRunner{Config: RunConfig{OutputDir: c.MkDir(), Format: "svg"}}
	err = runner.Run(context.Background(), src, tt, stubPresenter{}, FSPersister{})
	c.Check(errors.Is(err, ErrUnsupportedFormat), check.Equals, true)
}

func (s *gridRunnerSuite) TestInputShapeError(c *check.C) {
	src, _ := gridFixture(c)
	short := &TraitTable{SampleIDs: []string{"s1", "s2"}}
	err := short.AddColumn(NewContinuousColumn("age", []float64{41, 39}))
	c.Assert(err, check.IsNil)

	tmpdir := c.MkDir()
	runner := &GridRunner{Config: RunConfig{OutputDir: tmpdir, Format: FormatRaster}}
	err = runner.Run(context.Background(), src, short, stubPresenter{}, FSPersister{})
	c.Check(errors.Is(err, ErrSampleCountMismatch), check.Equals, true)

	// nothing may have been written
	entries, err := os.ReadDir(tmpdir)
	c.Assert(err, check.IsNil)
	c.Check(entries, check.HasLen, 0)
}

func (s *gridRunnerSuite) TestCancellation(c *check.C) {
	src, tt := gridFixture(c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &GridRunner{Config: RunConfig{OutputDir: c.MkDir(), Format: FormatRaster, Workers: 1}}
	err := runner.Run(ctx, src, tt, stubPresenter{}, FSPersister{})
	c.Check(errors.Is(err, context.Canceled), check.Equals, true)
}

func (s *gridRunnerSuite) TestRunSingle(c *check.C) {
	src, tt := gridFixture(c)
	runner := &GridRunner{Config: RunConfig{Format: FormatRaster}}
	artifacts, err := runner.RunSingle(context.Background(), src, tt, "1", 3, 0.01, stubPresenter{})
	c.Assert(err, check.IsNil)

	keys := make([]string, 0, len(artifacts))
	for key := range artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	c.Check(keys, check.DeepEquals, []string{"linear model", "qualitative", "quantitative"})
	for key, data := range artifacts {
		c.Check(len(data) > 0, check.Equals, true, check.Commentf("%s", key))
	}

	_, err = runner.RunSingle(context.Background(), src, tt, "1", 3, 7, stubPresenter{})
	c.Check(errors.Is(err, ErrUnknownGridPoint), check.Equals, true)
}
