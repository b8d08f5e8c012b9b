// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

type singleCmd struct {
	runner GridRunner
}

func (cmd *singleCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *singleCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "deconvolution result gob `file` (.gob or .gob.gz)")
	npyDir := flags.String("npy-dir", "", "read contribution matrices from contrib_*.npy files in `directory` instead of -i")
	traitsFilename := flags.String("traits", "", "phenotype `csv` file (required)")
	subset := flags.String("subset", "", "subset identifier")
	k := flags.Int("k", 0, "component count")
	lambda := flags.Float64("lambda", 0, "regularization strength")
	outputPrefix := flags.String("o", "./assoc", "output `prefix` for the three rendered artifacts")
	format := flags.String("format", FormatRaster, "output format (png or pdf)")
	pythonProg := flags.String("python", "python3", "python interpreter used for rendering")
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

	cmd.runner.Config = RunConfig{Format: *format}
	artifacts, err := cmd.runner.RunSingle(ctx, src, tt, *subset, *k, *lambda, &PythonHeatmap{Prog: *pythonProg})
	if err != nil {
		return err
	}
	for key, data := range artifacts {
		fnm := fmt.Sprintf("%s_%s.%s", *outputPrefix, strings.ReplaceAll(key, " ", "_"), *format)
		err := os.WriteFile(fnm, data, 0666)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, fnm)
	}
	return nil
}
