/*
   x86core - tick registry: a sorted linked list of deadline-triggered
   callbacks fired from the executor's suspension points.

   Adapted from the S370 event scheduler (Copyright (c) 2024, Richard
   Cornwell), which keeps pending events in a singly linked list sorted
   by trigger time and advances a running clock, firing and unlinking
   every event whose time has arrived. This version uses the same
   sorted-insert/fire-due-head shape but counts executor ticks instead
   of device-specific cycle units, and implements cpu.TickRegistry
   directly so the executor can drive it without caring what is
   actually registered.

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

package event

import "github.com/rcornwell/x86core/emu/cpu"

// Callback is invoked when a scheduled event's deadline arrives.
type Callback func(c *cpu.CPU)

type node struct {
	at       uint64
	periodic uint64 // 0 = one-shot; otherwise re-armed every periodic ticks
	fn       Callback
	next     *node
}

// Registry is a sorted linked list of pending events plus a running
// tick counter, implementing cpu.TickRegistry.
type Registry struct {
	now  uint64
	head *node
}

// New builds an empty tick registry.
func New() *Registry { return &Registry{} }

// Schedule arms a one-shot callback to fire after delay ticks.
func (r *Registry) Schedule(delay uint64, fn Callback) {
	r.insert(&node{at: r.now + delay, fn: fn})
}

// SchedulePeriodic arms a callback that re-arms itself every period
// ticks after firing (used for the periodic device polling the
// teacher's timer package provided).
func (r *Registry) SchedulePeriodic(period uint64, fn Callback) {
	r.insert(&node{at: r.now + period, periodic: period, fn: fn})
}

func (r *Registry) insert(n *node) {
	if r.head == nil || n.at < r.head.at {
		n.next = r.head
		r.head = n
		return
	}
	cur := r.head
	for cur.next != nil && cur.next.at <= n.at {
		cur = cur.next
	}
	n.next = cur.next
	cur.next = n
}

// Tick implements cpu.TickRegistry: advances the clock by one and
// fires (then unlinks, or re-arms) every event whose deadline has
// arrived.
func (r *Registry) Tick(c *cpu.CPU) {
	r.now++
	for r.head != nil && r.head.at <= r.now {
		due := r.head
		r.head = r.head.next
		due.fn(c)
		if due.periodic > 0 {
			due.at = r.now + due.periodic
			due.next = nil
			r.insert(due)
		}
	}
}

// Now returns the current tick count.
func (r *Registry) Now() uint64 { return r.now }
