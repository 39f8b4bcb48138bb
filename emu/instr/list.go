/*
   x86core - concrete instruction list.

   Grounded on the S370 instruction-table registration pattern used by
   cpu_standard.go/cpu_system.go (Copyright (c) 2024, Richard
   Cornwell): a flat table indexed by the primary opcode byte, built
   once at startup and handed to the executor as a cpu.List. Secondary
   dispatch for Group ModR/M extensions and the 0x0F map is out of
   scope for the subset of the architecture this core implements (see
   DESIGN.md).

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

package instr

import "github.com/rcornwell/x86core/emu/cpu"

// List is the concrete cpu.List this core dispatches through.
type List struct {
	table [256]cpu.Instruction
	have  [256]bool
}

// NewStandardList builds the instruction table for the subset of
// x86/x86-64 this core implements: prefixes, NOP/HLT, a small MOV
// family, short/near control flow, INT3, the REP string group, and
// the port-mapped IN/OUT forms.
func NewStandardList() *List {
	l := &List{}
	registerPrefixes(l)
	registerDataTransfer(l)
	registerBranch(l)
	registerString(l)
	registerIO(l)
	return l
}

func (l *List) register(b byte, instr cpu.Instruction) {
	l.table[b] = instr
	l.have[b] = true
}

// Lookup implements cpu.List.
func (l *List) Lookup(b byte) (cpu.Instruction, bool) {
	if !l.have[b] {
		return cpu.Instruction{}, false
	}
	return l.table[b], true
}

// MaxOpcodeLength implements cpu.List: the x86 architectural cap.
func (l *List) MaxOpcodeLength() int { return 15 }
