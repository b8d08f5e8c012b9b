// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/lmctools/traitassoc"

func main() {
	traitassoc.Main()
}
