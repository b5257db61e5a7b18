// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes body as an executable /bin/sh script named name
// in directory and returns its path.
//
//	engine := testutil.WriteScript(t, t.TempDir(), "engine", `
//	while read line; do
//	  case "$line" in usi) echo usiok ;; quit) exit 0 ;; esac
//	done`)
func WriteScript(t testing.TB, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}
