// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. These functions
// centralize the raw stderr output that happens before the structured
// logger exists or after it has been torn down:
//
//   - Fatal error reporting when the logger may not be initialized.
//   - Process exit with a propagated status (the mediator exits with
//     its engine's status on abnormal termination).
//
// The mediator's stdout is the USI channel to the host. Nothing in
// this package writes to it.
package process
