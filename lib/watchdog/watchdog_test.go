// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"testing"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type expiries struct {
	generations []uint64
}

func (e *expiries) record(generation uint64) {
	e.generations = append(e.generations, generation)
}

func TestArmFiresAfterTimeout(t *testing.T) {
	fake := clock.Fake(epoch)
	var fired expiries
	watchdog := New(fake, fired.record)

	generation := watchdog.Arm(10 * time.Second)
	deadline, armed := watchdog.Deadline()
	if !armed || !deadline.Equal(epoch.Add(10*time.Second)) {
		t.Fatalf("Deadline = %v, %v", deadline, armed)
	}

	fake.Advance(9 * time.Second)
	if len(fired.generations) != 0 {
		t.Fatal("fired before the deadline")
	}
	fake.Advance(time.Second)
	if len(fired.generations) != 1 || fired.generations[0] != generation {
		t.Fatalf("expiries = %v, want [%d]", fired.generations, generation)
	}
	if !watchdog.Expire(generation) {
		t.Fatal("Expire of the live generation should succeed")
	}
	if _, armed := watchdog.Deadline(); armed {
		t.Fatal("watchdog still armed after expiry")
	}
	if watchdog.Expire(generation) {
		t.Fatal("Expire should succeed only once")
	}
}

func TestRearmExtendsDeadline(t *testing.T) {
	fake := clock.Fake(epoch)
	var fired expiries
	watchdog := New(fake, fired.record)

	watchdog.Arm(10 * time.Second)
	fake.Advance(8 * time.Second)
	second := watchdog.Arm(10 * time.Second)
	fake.Advance(8 * time.Second)
	if len(fired.generations) != 0 {
		t.Fatalf("re-armed watchdog fired at the old deadline: %v", fired.generations)
	}
	fake.Advance(2 * time.Second)
	if len(fired.generations) != 1 || fired.generations[0] != second {
		t.Fatalf("expiries = %v, want [%d]", fired.generations, second)
	}
	if fake.PendingCount() != 0 {
		t.Fatalf("stale timers left pending: %d", fake.PendingCount())
	}
}

func TestDisarmCancels(t *testing.T) {
	fake := clock.Fake(epoch)
	var fired expiries
	watchdog := New(fake, fired.record)

	generation := watchdog.Arm(time.Second)
	watchdog.Disarm()
	fake.Advance(time.Minute)
	if len(fired.generations) != 0 {
		t.Fatalf("disarmed watchdog fired: %v", fired.generations)
	}
	if watchdog.Expire(generation) {
		t.Fatal("disarmed generation must be stale")
	}
	if _, armed := watchdog.Deadline(); armed {
		t.Fatal("Deadline reports armed after Disarm")
	}
}

// An expiry delivered to the owner after a re-arm belongs to a dead
// deadline and must be rejected.
func TestStaleExpiryRejected(t *testing.T) {
	fake := clock.Fake(epoch)
	var fired expiries
	watchdog := New(fake, fired.record)

	first := watchdog.Arm(time.Second)
	fake.Advance(time.Second)
	second := watchdog.Arm(time.Second)

	if watchdog.Expire(first) {
		t.Fatal("stale expiry accepted")
	}
	if !watchdog.Expire(second) {
		t.Fatal("second generation should be live")
	}
}
