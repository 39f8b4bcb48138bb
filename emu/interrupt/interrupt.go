/*
   x86core - interrupt and fault delivery.

   Grounded on the S370 interrupt-handling shape (Copyright (c) 2024,
   Richard Cornwell), which stores an old/new PSW pair per interrupt
   class and swaps them on delivery; this version generalizes that
   "save context, load handler context" idea to a flat real-mode-style
   vector table of 256 linear handler addresses and a three-field stack
   frame (flags, CS:IP equivalent, optional error code), which is
   enough to drive the executor's fault-delivery contract without
   modeling the full protected-mode IDT gate machinery.

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

package interrupt

import (
	"log/slog"

	"github.com/rcornwell/x86core/emu/cpu"
)

// Pending is one queued device interrupt awaiting delivery.
type Pending struct {
	Vector uint8
}

// Controller is the default cpu.InterruptDelivery implementation: a
// 256-entry vector table of linear handler addresses plus a FIFO of
// pending device interrupts.
type Controller struct {
	vectors [256]uint64
	set     [256]bool
	queue   []Pending
	log     *slog.Logger
}

// New builds a controller logging through logger (nil uses the
// default slog logger).
func New(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{log: logger}
}

// SetHandler installs the linear address the given vector transfers
// control to.
func (ic *Controller) SetHandler(vector uint8, linearAddr uint64) {
	ic.vectors[vector] = linearAddr
	ic.set[vector] = true
}

// Queue enqueues a device interrupt for the next suspension point.
func (ic *Controller) Queue(vector uint8) {
	ic.queue = append(ic.queue, Pending{Vector: vector})
}

// DeliverPendingInterrupts implements cpu.InterruptDelivery. It
// delivers at most one queued interrupt per call, matching the
// executor's one-tick-at-a-time suspension model (spec 5).
func (ic *Controller) DeliverPendingInterrupts(c *cpu.CPU) {
	if !c.RFlags.IF || len(ic.queue) == 0 {
		return
	}
	next := ic.queue[0]
	ic.queue = ic.queue[1:]
	if !ic.set[next.Vector] {
		ic.log.Warn("dropping interrupt with no installed handler", "vector", next.Vector)
		return
	}
	ic.pushFrame(c, c.RIP, false, 0)
	c.RIP = ic.vectors[next.Vector]
	ic.log.Debug("delivered interrupt", "vector", next.Vector, "handler", c.RIP)
}

// RaiseFault implements cpu.InterruptDelivery. It returns false when
// no handler is installed for vector, telling the executor to rethrow
// the fault to the host as a terminal condition (spec 7). For a page
// fault, CR2 is loaded with the faulting linear address before control
// transfers to the handler (spec 8, "CR2 is set to the faulting linear
// address"), matching real hardware's behavior of only ever updating
// CR2 on vector 14.
func (ic *Controller) RaiseFault(c *cpu.CPU, vector uint8, faultIP uint64, errorCode uint16, hasCode bool, linear uint64) bool {
	if !ic.set[vector] {
		return false
	}
	if vector == cpu.VectorPageFault {
		c.CR2 = linear
	}
	ic.log.Info("delivering fault", "vector", vector, "fault_ip", faultIP, "error_code", errorCode)
	ic.pushFrame(c, faultIP, hasCode, errorCode)
	c.RIP = ic.vectors[vector]
	return true
}

// pushFrame pushes a minimal real-mode-style interrupt frame
// (optional error code, return IP, flags) onto the flat ESP stack.
func (ic *Controller) pushFrame(c *cpu.CPU, returnIP uint64, hasCode bool, errorCode uint16) {
	push := func(v uint32) {
		esp := c.Reg32(cpu.RSP) - 4
		c.SetReg32(cpu.RSP, esp)
		_ = c.WriteDword(uint64(esp), v)
	}
	push(uint32(c.PackFlags()))
	push(uint32(returnIP))
	if hasCode {
		push(uint32(errorCode))
	}
}
