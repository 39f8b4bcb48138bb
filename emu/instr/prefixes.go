/*
   x86core - legacy prefix, REX, and REP/REPNE prefix bytes.

   Each prefix byte is registered as its own one-byte cpu.Instruction
   returning StatusContinue, per spec 9 ("REP / prefix-only
   instructions... return CONTINUE and must not clear transient
   overrides"). This is what lets the decode cache and Translation
   Block builder treat prefix runs exactly like any other instruction
   sequence with no special-casing in emu/cpu.

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

func onePrefixByte(set func(c *cpu.CPU)) cpu.Instruction {
	return cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			set(c)
			return 1, cpu.StatusContinue, nil
		},
	}
}

func registerPrefixes(l *List) {
	l.register(0x66, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().OperandSize = true }))
	l.register(0x67, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().AddressSize = true }))
	l.register(0xF0, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Lock = true }))

	l.register(0x26, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegES }))
	l.register(0x2E, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegCS }))
	l.register(0x36, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegSS }))
	l.register(0x3E, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegDS }))
	l.register(0x64, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegFS }))
	l.register(0x65, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Segment = cpu.SegGS }))

	// REP/REPE vs REPNE disambiguation is left to the consuming string
	// opcode (A4, AB and AE in this core), matching real x86 (F3 means REPE on
	// CMPS/SCAS but plain REP on MOVS/STOS/LODS).
	l.register(0xF3, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Rep = cpu.RepE }))
	l.register(0xF2, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Rep = cpu.RepNE }))

	for b := 0x40; b <= 0x4F; b++ {
		byteVal := byte(b)
		l.register(byteVal, onePrefixByte(func(c *cpu.CPU) { c.Prefixes().Rex = byteVal }))
	}
}
