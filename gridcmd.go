// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
)

type gridCmd struct {
	runner GridRunner
}

func (cmd *gridCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *gridCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "deconvolution result gob `file` (.gob or .gob.gz)")
	npyDir := flags.String("npy-dir", "", "read contribution matrices from contrib_*.npy files in `directory` instead of -i")
	traitsFilename := flags.String("traits", "", "phenotype `csv` file (required)")
	outputDir := flags.String("output-dir", "", "output `directory` (must exist)")
	format := flags.String("format", FormatRaster, "output format (png or pdf)")
	workers := flags.Int("workers", 0, "max concurrent grid points (0 = GOMAXPROCS)")
	permutations := flags.Int("permutation-test", 0, "replace the two-sample t-test with a permutation test of `N` rounds")
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

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := openSource(ctx, *inputFilename, *npyDir, stdin)
	if err != nil {
		return err
	}
	tt, err := openTraits(*traitsFilename)
	if err != nil {
		return err
	}

	cmd.runner.Config = RunConfig{
		OutputDir: *outputDir,
		Format:    *format,
		Workers:   *workers,
	}
	if *permutations > 0 {
		cmd.runner.Config.TwoSampleTest = PermutationTest(*permutations, 1)
	}
	return cmd.runner.Run(ctx, src, tt, &PythonHeatmap{Prog: *pythonProg}, FSPersister{})
}

func openSource(ctx context.Context, inputFilename, npyDir string, stdin io.Reader) (ContributionSource, error) {
	if npyDir != "" {
		return OpenNpyDir(npyDir)
	}
	var input io.ReadCloser
	if inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		f, err := os.Open(inputFilename)
		if err != nil {
			return nil, err
		}
		input = f
	}
	defer input.Close()
	return LoadDeconGob(ctx, input, strings.HasSuffix(inputFilename, ".gz"))
}

func openTraits(fnm string) (*TraitTable, error) {
	f, err := os.Open(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tt, err := LoadTraitsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return tt, nil
}
