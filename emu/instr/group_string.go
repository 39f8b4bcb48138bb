/*
   x86core - REP-prefixable string opcodes: MOVSB, STOS, SCASB.

   Each opcode performs exactly one iteration per Exec call and, while
   a REP/REPNE prefix is active and the count has not reached zero,
   loops back to its own start IP with cpu.CPU.IterationActive set so
   the executor's dispatch algorithm forces single-step mode for the
   remaining iterations (spec 4.5 step 3) instead of routing through
   TB or pattern dispatch.

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

// stepDelta returns +size or -size per the direction flag.
func stepDelta(c *cpu.CPU, size int32) int32 {
	if c.RFlags.DF {
		return -size
	}
	return size
}

// repCount reports whether a REP/REPE/REPNE prefix is live and the
// current ECX count. Callers treat rep with a zero count as "do
// nothing" (a REP-prefixed op with ECX==0 on entry does nothing).
func repCount(c *cpu.CPU) (rep bool, count uint32) {
	rep = c.Prefixes().Rep != cpu.RepNone
	count = c.Reg32(cpu.RCX)
	return rep, count
}

// loopOrFallThrough implements the shared REP looping shape: decrement
// ECX when a REP prefix is active, and if more iterations remain, rewind
// RIP to origIP and mark iteration active; otherwise fall through.
func loopOrFallThrough(c *cpu.CPU, origIP uint64, rep bool) {
	if !rep {
		c.SetIterationActive(false)
		return
	}
	remaining := c.Reg32(cpu.RCX) - 1
	c.SetReg32(cpu.RCX, remaining)
	if remaining == 0 {
		c.SetIterationActive(false)
		return
	}
	c.SetIterationActive(true)
	c.RIP = origIP
}

func registerString(l *List) {
	// MOVSB: [EDI] <- [ESI], byte.
	l.register(0xA4, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			origIP := c.RIP - 1
			rep, count := repCount(c)
			if rep && count == 0 {
				c.SetIterationActive(false)
				return 1, cpu.StatusSuccess, nil
			}
			esi, edi := c.Reg32(cpu.RSI), c.Reg32(cpu.RDI)
			b, err := c.ReadByte(uint64(esi))
			if err != nil {
				return 1, cpu.StatusSuccess, err
			}
			if err := c.WriteByte(uint64(edi), b); err != nil {
				return 1, cpu.StatusSuccess, err
			}
			d := stepDelta(c, 1)
			c.SetReg32(cpu.RSI, uint32(int32(esi)+d))
			c.SetReg32(cpu.RDI, uint32(int32(edi)+d))
			loopOrFallThrough(c, origIP, rep)
			return 1, cpu.StatusSuccess, nil
		},
	})

	// STOS: [EDI] <- AL/AX/EAX. Operand size is 2 bytes by default
	// (this core's reset state is 16-bit) and 4 bytes under an
	// operand-size override, matching the concrete scenario's
	// "F3 66 AB" encoding.
	l.register(0xAB, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			origIP := c.RIP - 1
			rep, count := repCount(c)
			if rep && count == 0 {
				c.SetIterationActive(false)
				return 1, cpu.StatusSuccess, nil
			}
			edi := c.Reg32(cpu.RDI)
			eax := c.Reg32(cpu.RAX)
			var size int32
			if c.Prefixes().OperandSize {
				size = 4
				if err := c.WriteDword(uint64(edi), eax); err != nil {
					return 1, cpu.StatusSuccess, err
				}
			} else {
				size = 2
				if err := c.WriteWord(uint64(edi), uint16(eax)); err != nil {
					return 1, cpu.StatusSuccess, err
				}
			}
			d := stepDelta(c, size)
			c.SetReg32(cpu.RDI, uint32(int32(edi)+d))
			loopOrFallThrough(c, origIP, rep)
			return 1, cpu.StatusSuccess, nil
		},
	})

	// SCASB: compare AL against [EDI], byte; REPNE stops on first
	// match (ZF=1), setting the zero flag used by the marker-search
	// concrete scenario.
	l.register(0xAE, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			origIP := c.RIP - 1
			rep, count := repCount(c)
			if rep && count == 0 {
				c.SetIterationActive(false)
				return 1, cpu.StatusSuccess, nil
			}
			edi := c.Reg32(cpu.RDI)
			al := byte(c.Reg32(cpu.RAX))
			mem, err := c.ReadByte(uint64(edi))
			if err != nil {
				return 1, cpu.StatusSuccess, err
			}
			c.RFlags.ZF = al == mem
			c.RFlags.CF = al < mem
			d := stepDelta(c, 1)
			c.SetReg32(cpu.RDI, uint32(int32(edi)+d))

			// REPNE SCASB (F2 AE) stops the moment it finds a match;
			// REPE SCASB (F3 AE) stops the moment a byte differs.
			if rep && ((c.Prefixes().Rep == cpu.RepNE && c.RFlags.ZF) ||
				(c.Prefixes().Rep == cpu.RepE && !c.RFlags.ZF)) {
				c.SetIterationActive(false)
				return 1, cpu.StatusSuccess, nil
			}
			loopOrFallThrough(c, origIP, rep)
			return 1, cpu.StatusSuccess, nil
		},
	})
}
