// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// LoadTraitsCSV reads a rectangular phenotype table: header row, one
// row per sample, column 0 the sample id. A column whose non-missing
// values all parse as numbers becomes a continuous trait; anything
// else becomes categorical. Empty cells, "NA" and "NaN" are missing.
// Row order must match the sample order of the contribution matrices.
func LoadTraitsCSV(rdr io.Reader) (*TraitTable, error) {
	csvr := csv.NewReader(rdr)
	recs, err := csvr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) < 2 {
		return nil, fmt.Errorf("phenotype csv has no sample rows")
	}
	header := recs[0]
	rows := recs[1:]
	tt := &TraitTable{}
	for _, row := range rows {
		tt.SampleIDs = append(tt.SampleIDs, row[0])
	}
	for c := 1; c < len(header); c++ {
		raw := make([]string, len(rows))
		for i, row := range rows {
			raw[i] = row[c]
		}
		err := tt.AddColumn(buildColumn(header[c], raw))
		if err != nil {
			return nil, err
		}
	}
	return tt, nil
}

func buildColumn(name string, raw []string) TraitColumn {
	numeric := make([]float64, len(raw))
	isNumeric := true
	for i, s := range raw {
		if missingToken(s) {
			numeric[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			isNumeric = false
			break
		}
		numeric[i] = v
	}
	if isNumeric {
		return NewContinuousColumn(name, numeric)
	}
	labels := make([]string, len(raw))
	for i, s := range raw {
		if !missingToken(s) {
			labels[i] = s
		}
	}
	return NewCategoricalColumn(name, labels)
}

func missingToken(s string) bool {
	return s == "" || s == "NA" || s == "NaN" || s == "nan"
}
