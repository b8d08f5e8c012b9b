// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
)

// exportNumpy writes one grid point's qualitative p-value table as
// matrix.npy (groupings x components, NotApplicable rows as NaN) plus
// matrix.labels.csv naming the rows and columns, for downstream
// analysis outside this tool.
type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *exportNumpy) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "deconvolution result gob `file` (.gob or .gob.gz)")
	npyDir := flags.String("npy-dir", "", "read contribution matrices from contrib_*.npy files in `directory` instead of -i")
	traitsFilename := flags.String("traits", "", "phenotype `csv` file (required)")
	subset := flags.String("subset", "", "subset identifier")
	k := flags.Int("k", 0, "component count")
	lambda := flags.Float64("lambda", 0, "regularization strength")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	if *traitsFilename == "" {
		return fmt.Errorf("must provide -traits")
	}

	ctx := context.Background()
	src, err := openSource(ctx, *inputFilename, *npyDir, stdin)
	if err != nil {
		return err
	}
	tt, err := openTraits(*traitsFilename)
	if err != nil {
		return err
	}
	m, err := src.Contributions(*subset, *k, *lambda)
	if err != nil {
		return err
	}
	assoc, err := ComputeGroupAssociations(m, tt, nil)
	if err != nil {
		return err
	}
	table := qualitativeTable(assoc, m.Components)

	output, err := os.OpenFile(filepath.Join(*outputDir, "matrix.npy"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = []int{len(table.RowLabels), len(table.ColLabels)}
	flat := make([]float64, 0, len(table.RowLabels)*len(table.ColLabels))
	for _, row := range table.Values {
		flat = append(flat, row...)
	}
	err = npw.WriteFloat64(flat)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	err = output.Close()
	if err != nil {
		return err
	}

	labels, err := os.Create(filepath.Join(*outputDir, "matrix.labels.csv"))
	if err != nil {
		return err
	}
	defer labels.Close()
	csvw := csv.NewWriter(labels)
	for i, name := range table.RowLabels {
		na := ""
		if math.IsNaN(table.Values[i][0]) && allNaN(table.Values[i]) {
			na = "NA"
		}
		err = csvw.Write([]string{"row", fmt.Sprintf("%d", i), name, na})
		if err != nil {
			return err
		}
	}
	for j, name := range table.ColLabels {
		err = csvw.Write([]string{"col", fmt.Sprintf("%d", j), name, ""})
		if err != nil {
			return err
		}
	}
	csvw.Flush()
	if err := csvw.Error(); err != nil {
		return err
	}
	return labels.Close()
}

func allNaN(vals []float64) bool {
	for _, v := range vals {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
