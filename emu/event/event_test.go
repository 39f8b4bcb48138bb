/*
   x86core - tick registry tests.

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
*/

package event_test

import (
	"testing"

	"github.com/rcornwell/x86core/emu/cpu"
	"github.com/rcornwell/x86core/emu/event"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	r := event.New()
	fired := 0
	r.Schedule(3, func(*cpu.CPU) { fired++ })

	for i := 0; i < 2; i++ {
		r.Tick(nil)
	}
	if fired != 0 {
		t.Fatalf("fired = %d before the deadline, want 0", fired)
	}
	r.Tick(nil)
	if fired != 1 {
		t.Fatalf("fired = %d at the deadline, want 1", fired)
	}
	r.Tick(nil)
	if fired != 1 {
		t.Fatalf("fired = %d, a one-shot event must not fire twice", fired)
	}
}

func TestScheduleOrdersMultipleEventsByDeadline(t *testing.T) {
	r := event.New()
	var order []string
	r.Schedule(5, func(*cpu.CPU) { order = append(order, "late") })
	r.Schedule(2, func(*cpu.CPU) { order = append(order, "early") })
	r.Schedule(2, func(*cpu.CPU) { order = append(order, "early-too") })

	for i := 0; i < 5; i++ {
		r.Tick(nil)
	}
	if len(order) != 3 {
		t.Fatalf("fired %d events, want 3", len(order))
	}
	if order[0] != "early" || order[1] != "early-too" {
		t.Errorf("order = %v, want the two tick-2 events to fire before the tick-5 one", order)
	}
	if order[2] != "late" {
		t.Errorf("order = %v, want \"late\" last", order)
	}
}

func TestSchedulePeriodicReArms(t *testing.T) {
	r := event.New()
	fired := 0
	r.SchedulePeriodic(2, func(*cpu.CPU) { fired++ })

	for i := 0; i < 7; i++ {
		r.Tick(nil)
	}
	// Fires at ticks 2, 4, 6 within a 7-tick run.
	if fired != 3 {
		t.Fatalf("fired = %d, want 3 periodic firings", fired)
	}
}

func TestNowTracksTickCount(t *testing.T) {
	r := event.New()
	for i := 0; i < 10; i++ {
		r.Tick(nil)
	}
	if r.Now() != 10 {
		t.Errorf("Now() = %d, want 10", r.Now())
	}
}
