/*
   x86core - port I/O device bus and screen flush.

   Adapted from the S370 Device capability interface (Copyright (c)
   2024, Richard Cornwell): the teacher's channel devices expose a
   small capability set (StartIO/read/write) that emu/sys_channel calls
   through without knowing the concrete device. This version shrinks
   that to the x86 port-I/O model (IN/OUT against a 16-bit port space,
   reached by the IN/OUT handlers through cpu.PortBus) and a separate
   Screen flush hook that the executor calls through cpu.Screen at
   suspension points.

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

package device

import "github.com/rcornwell/x86core/emu/cpu"

// Port is a single port-mapped I/O device.
type Port interface {
	In(width int) uint32
	Out(width int, value uint32)
}

// Bus routes IN/OUT accesses to registered ports. Unregistered ports
// read as all-ones and discard writes, matching a floating bus.
type Bus struct {
	ports map[uint16]Port
}

// NewBus builds an empty port bus.
func NewBus() *Bus { return &Bus{ports: make(map[uint16]Port)} }

// Register attaches port to the given port-space address.
func (b *Bus) Register(addr uint16, port Port) { b.ports[addr] = port }

// In reads width bytes from addr.
func (b *Bus) In(addr uint16, width int) uint32 {
	if p, ok := b.ports[addr]; ok {
		return p.In(width)
	}
	return 0xFFFFFFFF
}

// Out writes width bytes to addr.
func (b *Bus) Out(addr uint16, width int, value uint32) {
	if p, ok := b.ports[addr]; ok {
		p.Out(width, value)
	}
}

// Screen is a minimal text-mode console flush target implementing
// cpu.Screen. It only decides whether a flush is due and calls Render
// when one is.
type Screen struct {
	dirty  bool
	Render func()
}

// NewScreen builds a screen that calls render when a flush is due.
func NewScreen(render func()) *Screen { return &Screen{Render: render} }

// MarkDirty records that visible state changed, so the next flush
// renders. No instruction handler in this core calls it.
func (s *Screen) MarkDirty() { s.dirty = true }

// FlushIfNeeded implements cpu.Screen.
func (s *Screen) FlushIfNeeded(_ *cpu.CPU) {
	if !s.dirty {
		return
	}
	s.dirty = false
	if s.Render != nil {
		s.Render()
	}
}
