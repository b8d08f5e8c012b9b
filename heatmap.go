// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:embed heatmap.py
var heatmapPy string

// PythonHeatmap renders a result table as a -log10(p) heatmap by
// piping the embedded matplotlib script to a python interpreter.
type PythonHeatmap struct {
	// Prog is the python interpreter; "" means python3.
	Prog string
}

func (p *PythonHeatmap) Render(t ResultTable, format string) ([]byte, error) {
	prog := p.Prog
	if prog == "" {
		prog = "python3"
	}
	tmpdir, err := os.MkdirTemp("", "traitassoc")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpdir)
	jsonPath := filepath.Join(tmpdir, "table.json")
	outPath := filepath.Join(tmpdir, "heatmap."+format)
	f, err := os.Create(jsonPath)
	if err != nil {
		return nil, err
	}
	err = json.NewEncoder(f).Encode(tableJSON(t))
	if err != nil {
		return nil, err
	}
	err = f.Close()
	if err != nil {
		return nil, err
	}

	var stderr strings.Builder
	cmd := exec.Command(prog, "-", jsonPath, outPath)
	cmd.Stdin = strings.NewReader(heatmapPy)
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", prog, err, strings.TrimSpace(stderr.String()))
	}
	return os.ReadFile(outPath)
}

// tableJSON converts t to the script's input document. NaN has no
// JSON encoding, so missing cells become null.
func tableJSON(t ResultTable) map[string]interface{} {
	values := make([][]interface{}, len(t.Values))
	for i, row := range t.Values {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				values[i][j] = nil
			} else {
				values[i][j] = v
			}
		}
	}
	return map[string]interface{}{
		"title":  t.Kind,
		"rows":   t.RowLabels,
		"cols":   t.ColLabels,
		"values": values,
	}
}
