// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var wantHeader = []string{
	"// Copyright 2026 The shogi-usi-failover Authors",
	"// SPDX-License-Identifier: Apache-2.0",
}

// Every Go source file in the module starts with the project header.
func TestSourceHeaders(t *testing.T) {
	root := filepath.Join("..", "..")
	checked := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		checked++
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for _, want := range wantHeader {
			if !scanner.Scan() || scanner.Text() != want {
				t.Errorf("%s: header line %q missing", path, want)
				return nil
			}
		}
		return scanner.Err()
	})
	if err != nil {
		t.Fatalf("walking module: %v", err)
	}
	if checked == 0 {
		t.Fatal("no Go files found")
	}
}
