// Copyright (C) The Traitassoc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package traitassoc

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// FSPersister stores artifacts on the local filesystem, logging a
// content digest for each so identical reruns can be confirmed from
// the logs.
type FSPersister struct{}

func (FSPersister) Save(path string, data []byte) error {
	err := os.WriteFile(path, data, 0666)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"path":    path,
		"bytes":   len(data),
		"blake2b": fmt.Sprintf("%x", blake2b.Sum256(data)),
	}).Debug("artifact written")
	return nil
}
