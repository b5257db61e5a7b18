// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// osExit is replaced in tests.
var osExit = os.Exit

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	Exit(1, err)
}

// Exit reports err (when non-nil) on stderr and exits with code.
func Exit(code int, err error) {
	report(os.Stderr, err)
	osExit(code)
}

func report(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}
