// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"reflect"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	clock := Fake(epoch)
	clock.Advance(3 * time.Second)
	if got, want := clock.Now(), epoch.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)
	clock.Advance(4 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired early")
	default:
	}
	clock.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}

	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) should be immediate")
	}
}

func TestFakeAfterFuncOrderAndStop(t *testing.T) {
	clock := Fake(epoch)
	var fired []string
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	cancelled := clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	if clock.PendingCount() != 3 {
		t.Fatalf("PendingCount = %d, want 3", clock.PendingCount())
	}
	if !cancelled.Stop() {
		t.Fatal("Stop on a pending timer should return true")
	}
	if cancelled.Stop() {
		t.Fatal("second Stop should return false")
	}

	clock.Advance(10 * time.Second)
	if !reflect.DeepEqual(fired, []string{"a", "c"}) {
		t.Fatalf("fired = %v, want [a c]", fired)
	}
	if clock.PendingCount() != 0 {
		t.Fatalf("PendingCount after firing = %d", clock.PendingCount())
	}
}

func TestFakeAfterFuncStopAfterFire(t *testing.T) {
	clock := Fake(epoch)
	timer := clock.AfterFunc(time.Second, func() {})
	clock.Advance(time.Second)
	if timer.Stop() {
		t.Fatal("Stop after firing should return false")
	}
}

func TestFakeCallbackMayRearm(t *testing.T) {
	clock := Fake(epoch)
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			clock.AfterFunc(time.Second, rearm)
		}
	}
	clock.AfterFunc(time.Second, rearm)
	clock.Advance(time.Second)
	if count != 1 {
		t.Fatalf("count = %d after one interval, want 1", count)
	}
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	clock.Advance(time.Hour)
	if count != 3 {
		t.Fatalf("count = %d after the chain ended, want 3", count)
	}
}

func TestWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-clock.After(time.Second)
		close(done)
	}()
	clock.WaitForTimers(1)
	clock.Advance(time.Second)
	<-done
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil timer Stop should return false")
	}
}
