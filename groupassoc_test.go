// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"errors"
	"math"

	"gopkg.in/check.v1"
)

type groupAssocSuite struct{}

var _ = check.Suite(&groupAssocSuite{})

func (s *groupAssocSuite) TestTwoClassGrouping(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	err := tt.AddColumn(NewCategoricalColumn("treatment", []string{"A", "A", "A", "A", "B", "B"}))
	c.Assert(err, check.IsNil)

	ret, err := ComputeGroupAssociations(m, tt, nil)
	c.Assert(err, check.IsNil)
	c.Assert(ret, check.HasLen, 1)
	g := ret["treatment"]
	c.Check(g.NotApplicable, check.Equals, false)
	c.Assert(g.P, check.HasLen, 3)
	for _, p := range g.P {
		c.Check(p >= 0 && p <= 1, check.Equals, true, check.Commentf("p=%v", p))
	}
	// component 3 cleanly separates A from B
	c.Check(g.P[2] < 0.01, check.Equals, true, check.Commentf("p=%v", g.P[2]))
	// component 1 does not separate A from B at all
	c.Check(g.P[0] > 0.05, check.Equals, true, check.Commentf("p=%v", g.P[0]))
}

func (s *groupAssocSuite) TestMultiClassGroupingUsesKruskalWallis(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	err := tt.AddColumn(NewCategoricalColumn("batch", []string{"A", "A", "B", "B", "C", "C"}))
	c.Assert(err, check.IsNil)

	ret, err := ComputeGroupAssociations(m, tt, nil)
	c.Assert(err, check.IsNil)
	g := ret["batch"]
	c.Assert(g.P, check.HasLen, 3)
	for comp := 0; comp < 3; comp++ {
		row := m.Row(comp)
		want := kruskalWallis([][]float64{row[0:2], row[2:4], row[4:6]})
		c.Check(g.P[comp], check.Equals, want)
		c.Check(g.P[comp] >= 0 && g.P[comp] <= 1, check.Equals, true)
	}
}

func (s *groupAssocSuite) TestDegenerateGrouping(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	err := tt.AddColumn(NewCategoricalColumn("site", []string{"X", "X", "X", "X", "X", "X"}))
	c.Assert(err, check.IsNil)
	err = tt.AddColumn(NewCategoricalColumn("empty", []string{"", "", "", "", "", ""}))
	c.Assert(err, check.IsNil)

	ret, err := ComputeGroupAssociations(m, tt, nil)
	c.Assert(err, check.IsNil)
	c.Check(ret["site"].NotApplicable, check.Equals, true)
	c.Check(ret["site"].P, check.IsNil)
	c.Check(ret["empty"].NotApplicable, check.Equals, true)
}

func (s *groupAssocSuite) TestMissingValuesExcluded(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	// samples 3 and 4 have no treatment value; the A class is
	// then constant on component 1
	err := tt.AddColumn(NewCategoricalColumn("treatment", []string{"A", "A", "", "", "B", "B"}))
	c.Assert(err, check.IsNil)

	ret, err := ComputeGroupAssociations(m, tt, nil)
	c.Assert(err, check.IsNil)
	g := ret["treatment"]
	c.Check(g.NotApplicable, check.Equals, false)
	// with samples 3-4 excluded, both classes are constant 0.1 on
	// component 1: equal means
	c.Check(g.P[0], check.Equals, 1.0)
	// component 3 still separates
	c.Check(g.P[2], check.Equals, 0.0)
}

func (s *groupAssocSuite) TestSampleCountMismatch(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3"}}
	err := tt.AddColumn(NewCategoricalColumn("treatment", []string{"A", "A", "B"}))
	c.Assert(err, check.IsNil)
	_, err = ComputeGroupAssociations(m, tt, nil)
	c.Check(errors.Is(err, ErrSampleCountMismatch), check.Equals, true)
}

func (s *groupAssocSuite) TestSubstituteTest(c *check.C) {
	m := specimen()
	tt := &TraitTable{SampleIDs: []string{"s1", "s2", "s3", "s4", "s5", "s6"}}
	err := tt.AddColumn(NewCategoricalColumn("treatment", []string{"A", "A", "A", "A", "B", "B"}))
	c.Assert(err, check.IsNil)

	calls := 0
	ret, err := ComputeGroupAssociations(m, tt, func(a, b []float64) float64 {
		calls++
		return 0.5
	})
	c.Assert(err, check.IsNil)
	c.Check(calls, check.Equals, 3)
	c.Check(ret["treatment"].P, check.DeepEquals, []float64{0.5, 0.5, 0.5})
}

func (s *groupAssocSuite) TestWelchTTest(c *check.C) {
	// equal variances, modest shift: t=1.095 with 6 df
	p := WelchTTest([]float64{1, 2, 3, 4}, []float64{2, 3, 4, 5})
	c.Check(p > 0.25 && p < 0.40, check.Equals, true, check.Commentf("p=%v", p))
	c.Check(WelchTTest([]float64{2, 3, 4, 5}, []float64{1, 2, 3, 4}), check.Equals, p)

	c.Check(WelchTTest([]float64{1, 1}, []float64{1, 1}), check.Equals, 1.0)
	c.Check(WelchTTest([]float64{1, 1}, []float64{2, 2}), check.Equals, 0.0)
	c.Check(math.IsNaN(WelchTTest([]float64{1}, []float64{2, 3})), check.Equals, true)
}

func (s *groupAssocSuite) TestKruskalWallis(c *check.C) {
	// three fully separated groups, no ties: H = 7.2, 2 df
	p := kruskalWallis([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	c.Check(math.Abs(p-math.Exp(-3.6)) < 5e-4, check.Equals, true, check.Commentf("p=%v", p))

	// identical pooled values: nothing to rank
	c.Check(kruskalWallis([][]float64{{1, 1}, {1, 1}, {1, 1}}), check.Equals, 1.0)
}

func (s *groupAssocSuite) TestPermutationTest(c *check.C) {
	test := PermutationTest(500, 42)
	p := test([]float64{0.1, 0.1, 0.1, 0.1}, []float64{0.8, 0.8})
	c.Check(p < 0.2, check.Equals, true, check.Commentf("p=%v", p))
	p = test([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	c.Check(p > 0.5, check.Equals, true, check.Commentf("p=%v", p))
}
