// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestExitPropagatesCode(t *testing.T) {
	var got []int
	saved := osExit
	osExit = func(code int) { got = append(got, code) }
	t.Cleanup(func() { osExit = saved })

	Exit(7, nil)
	Fatal(errors.New("engine descriptor missing"))
	Exit(0, nil)

	if len(got) != 3 || got[0] != 7 || got[1] != 1 || got[2] != 0 {
		t.Errorf("exit codes = %v, want [7 1 0]", got)
	}
}

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, nil)
	if buffer.Len() != 0 {
		t.Errorf("nil error wrote %q", buffer.String())
	}
	report(&buffer, errors.New("boom"))
	if buffer.String() != "error: boom\n" {
		t.Errorf("report = %q", buffer.String())
	}
}
