// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import "errors"

// Structural and configuration errors abort a run before any output
// is written. Per-trait and per-grouping degeneracies are not errors:
// they surface as NotApplicable markers or NaN entries in the result
// tables.
var (
	// ErrDirNotExist: the configured output directory does not
	// exist (it must be created by the caller).
	ErrDirNotExist = errors.New("output directory does not exist")
	// ErrUnsupportedFormat: the output format token is not one of
	// the supported formats.
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrSampleCountMismatch: the trait table and the contribution
	// source disagree on the number of samples.
	ErrSampleCountMismatch = errors.New("sample count mismatch")
	// ErrUnknownGridPoint: the requested (subset, K, lambda) is
	// not present in the parameter grid.
	ErrUnknownGridPoint = errors.New("no such grid point")
)
