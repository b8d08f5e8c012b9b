// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/pgzip"
	"github.com/kshedden/gonpy"
)

// simplexTolerance is the allowed deviation of a per-sample
// contribution column from summing to exactly 1.
const simplexTolerance = 1e-6

// ContributionMatrix holds per-sample mixing proportions for one grid
// point: Components rows, Samples columns, row-major. Each column is
// on the simplex (non-negative, sums to 1).
type ContributionMatrix struct {
	Components int
	Samples    int
	Data       []float64
}

// Row returns component row i without copying. Callers must not
// modify it.
func (m *ContributionMatrix) Row(i int) []float64 {
	return m.Data[i*m.Samples : (i+1)*m.Samples]
}

func (m *ContributionMatrix) Validate() error {
	if len(m.Data) != m.Components*m.Samples {
		return fmt.Errorf("contribution matrix is %dx%d but has %d values", m.Components, m.Samples, len(m.Data))
	}
	for j := 0; j < m.Samples; j++ {
		sum := 0.0
		for i := 0; i < m.Components; i++ {
			v := m.Data[i*m.Samples+j]
			if v < 0 || v > 1 || math.IsNaN(v) {
				return fmt.Errorf("contribution for component %d, sample %d is %v, want [0,1]", i+1, j+1, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > simplexTolerance {
			return fmt.Errorf("contributions for sample %d sum to %v, want 1", j+1, sum)
		}
	}
	return nil
}

// GridKey identifies one hyperparameter combination of a
// deconvolution run.
type GridKey struct {
	Subset string
	K      int
	Lambda float64
}

func (k GridKey) String() string {
	return fmt.Sprintf("subset %s, K %d, lambda %g", k.Subset, k.K, k.Lambda)
}

// ContributionSource provides contribution matrices for an enumerable
// parameter grid.
type ContributionSource interface {
	Grid() (subsets []string, ks []int, lambdas []float64)
	Contributions(subset string, k int, lambda float64) (*ContributionMatrix, error)
	SampleCount() int
}

// DeconResult is an in-memory deconvolution result: the parameter
// grid plus one contribution matrix per grid point.
type DeconResult struct {
	Subsets []string
	Ks      []int
	Lambdas []float64

	matrices map[GridKey]*ContributionMatrix
	samples  int
}

func (r *DeconResult) Grid() ([]string, []int, []float64) {
	return r.Subsets, r.Ks, r.Lambdas
}

func (r *DeconResult) SampleCount() int { return r.samples }

func (r *DeconResult) Contributions(subset string, k int, lambda float64) (*ContributionMatrix, error) {
	m, ok := r.matrices[GridKey{subset, k, lambda}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGridPoint, GridKey{subset, k, lambda})
	}
	return m, nil
}

// Add validates m and stores it under key. All matrices in one
// DeconResult must agree on the sample count, and key.K must match
// the matrix shape.
func (r *DeconResult) Add(key GridKey, m *ContributionMatrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if key.K != m.Components {
		return fmt.Errorf("grid point %s: matrix has %d components", key, m.Components)
	}
	if r.samples == 0 {
		r.samples = m.Samples
	} else if r.samples != m.Samples {
		return fmt.Errorf("grid point %s: matrix has %d samples, want %d", key, m.Samples, r.samples)
	}
	if r.matrices == nil {
		r.matrices = map[GridKey]*ContributionMatrix{}
	}
	r.matrices[key] = m
	addString(&r.Subsets, key.Subset)
	addInt(&r.Ks, key.K)
	addFloat(&r.Lambdas, key.Lambda)
	return nil
}

func addString(s *[]string, v string) {
	i := sort.SearchStrings(*s, v)
	if i < len(*s) && (*s)[i] == v {
		return
	}
	*s = append(*s, "")
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

func addInt(s *[]int, v int) {
	i := sort.SearchInts(*s, v)
	if i < len(*s) && (*s)[i] == v {
		return
	}
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

func addFloat(s *[]float64, v float64) {
	i := sort.SearchFloat64s(*s, v)
	if i < len(*s) && (*s)[i] == v {
		return
	}
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

// DeconEntry is one entry in a gob-encoded deconvolution result
// stream. A stream is a sequence of entries; each entry carries any
// number of grid points.
type DeconEntry struct {
	SampleIDs []string // optional, first entry only
	Points    []GridPointData
}

// GridPointData is the serialized form of one grid point's matrix.
type GridPointData struct {
	Subset string
	K      int
	Lambda float64
	Data   []float64 // row-major, K x len(samples)
}

// DecodeDeconGob reads a deconvolution result stream from rdr,
// decompressing with pgzip if gz is true, and calls fn on each entry.
func DecodeDeconGob(rdr io.Reader, gz bool, fn func(*DeconEntry) error) error {
	if gz {
		zr, err := pgzip.NewReader(rdr)
		if err != nil {
			return err
		}
		defer zr.Close()
		rdr = zr
	}
	dec := gob.NewDecoder(rdr)
	for {
		var ent DeconEntry
		err := dec.Decode(&ent)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("gob decode: %w", err)
		}
		err = fn(&ent)
		if err != nil {
			return err
		}
	}
}

// LoadDeconGob assembles a DeconResult from a gob stream.
func LoadDeconGob(ctx context.Context, rdr io.Reader, gz bool) (*DeconResult, error) {
	ret := &DeconResult{}
	err := DecodeDeconGob(rdr, gz, func(ent *DeconEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, p := range ent.Points {
			m := &ContributionMatrix{Components: p.K, Samples: len(p.Data) / p.K, Data: p.Data}
			err := ret.Add(GridKey{p.Subset, p.K, p.Lambda}, m)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ret.matrices) == 0 {
		return nil, fmt.Errorf("empty deconvolution result stream")
	}
	return ret, nil
}

// EncodeDeconGob writes r as a gob stream, one entry per grid point,
// compressing with pgzip if gz is true.
func EncodeDeconGob(w io.Writer, gz bool, r *DeconResult) error {
	if gz {
		zw := pgzip.NewWriter(w)
		defer zw.Close()
		err := encodeDeconEntries(zw, r)
		if err != nil {
			return err
		}
		return zw.Close()
	}
	return encodeDeconEntries(w, r)
}

func encodeDeconEntries(w io.Writer, r *DeconResult) error {
	enc := gob.NewEncoder(w)
	keys := make([]GridKey, 0, len(r.matrices))
	for key := range r.matrices {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Subset != keys[j].Subset {
			return keys[i].Subset < keys[j].Subset
		}
		if keys[i].K != keys[j].K {
			return keys[i].K < keys[j].K
		}
		return keys[i].Lambda < keys[j].Lambda
	})
	for _, key := range keys {
		m := r.matrices[key]
		err := enc.Encode(DeconEntry{Points: []GridPointData{{
			Subset: key.Subset,
			K:      key.K,
			Lambda: key.Lambda,
			Data:   m.Data,
		}}})
		if err != nil {
			return err
		}
	}
	return nil
}

var matchContribNpy = regexp.MustCompile(`^contrib_(.+)_K(\d+)_lambda([0-9.eE+-]+)\.npy$`)

// gridNpyName is the file naming scheme NpyDirSource expects.
func gridNpyName(subset string, k int, lambda float64) string {
	return fmt.Sprintf("contrib_%s_K%d_lambda%g.npy", subset, k, lambda)
}

// NpyDirSource is a ContributionSource backed by a directory of
// contrib_<subset>_K<K>_lambda<lambda>.npy files, loaded on demand.
type NpyDirSource struct {
	Dir string

	subsets []string
	ks      []int
	lambdas []float64
	files   map[GridKey]string
	samples int
}

// OpenNpyDir scans dir for contribution matrix files and reads the
// first one to learn the sample count.
func OpenNpyDir(dir string) (*NpyDirSource, error) {
	fis, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	src := &NpyDirSource{Dir: dir, files: map[GridKey]string{}}
	for _, fi := range fis {
		m := matchContribNpy.FindStringSubmatch(fi.Name())
		if m == nil {
			continue
		}
		k, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		lambda, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		key := GridKey{m[1], k, lambda}
		src.files[key] = filepath.Join(dir, fi.Name())
		addString(&src.subsets, key.Subset)
		addInt(&src.ks, key.K)
		addFloat(&src.lambdas, key.Lambda)
	}
	if len(src.files) == 0 {
		return nil, fmt.Errorf("no contrib_*.npy files found in %s", dir)
	}
	for key := range src.files {
		m, err := src.Contributions(key.Subset, key.K, key.Lambda)
		if err != nil {
			return nil, err
		}
		src.samples = m.Samples
		break
	}
	return src, nil
}

func (src *NpyDirSource) Grid() ([]string, []int, []float64) {
	return src.subsets, src.ks, src.lambdas
}

func (src *NpyDirSource) SampleCount() int { return src.samples }

func (src *NpyDirSource) Contributions(subset string, k int, lambda float64) (*ContributionMatrix, error) {
	fnm, ok := src.files[GridKey{subset, k, lambda}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGridPoint, GridKey{subset, k, lambda})
	}
	f, err := os.Open(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(npy.Shape) != 2 || npy.Shape[0] != k {
		return nil, fmt.Errorf("%s: shape %v, want [%d N]", fnm, npy.Shape, k)
	}
	data, err := npy.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	m := &ContributionMatrix{Components: npy.Shape[0], Samples: npy.Shape[1], Data: data}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return m, nil
}
