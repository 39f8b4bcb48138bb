/*
   x86core - dword-memset hot pattern.

   Grounded on spec 4.4's "dword-memset loop" example recognizer: it
   matches the same REP STOSD encoding the interpreter already handles
   one iteration at a time (emu/instr's 0xAB handler) and, once
   compiled, performs the whole fill in a single bulk write instead of
   ECX separate iterations. The two paths must agree byte-for-byte
   (spec 8, "pattern equivalence"), which is what makes this a useful
   side-by-side test rather than just an optimization.

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

package pattern

import "github.com/rcornwell/x86core/emu/cpu"

// DwordMemset recognizes "F3 66 AB" (REP STOSD under an operand-size
// override) and replaces it with a single bulk fill.
type DwordMemset struct{}

// TryCompile implements cpu.Recognizer.
func (DwordMemset) TryCompile(_ *cpu.CPU, startIP uint64, peek []byte) (cpu.CompiledPattern, bool) {
	if len(peek) < 3 || peek[0] != 0xF3 || peek[1] != 0x66 || peek[2] != 0xAB {
		return nil, false
	}
	return compiledDwordMemset(startIP), true
}

func compiledDwordMemset(startIP uint64) cpu.CompiledPattern {
	return func(c *cpu.CPU) (cpu.PatternResult, error) {
		if c.IsPagingEnabled() {
			// The bulk fast path assumes flat linear==physical
			// addressing; skip and let the interpreter iterate.
			return cpu.PatternResult{Outcome: cpu.PatternSkip}, nil
		}

		count := c.Reg32(cpu.RCX)
		finalIP := startIP + 3
		if count == 0 {
			return cpu.PatternResult{Outcome: cpu.PatternSuccess, FinalIP: finalIP}, nil
		}

		eax := c.Reg32(cpu.RAX)
		edi := c.Reg32(cpu.RDI)
		word := []byte{byte(eax), byte(eax >> 8), byte(eax >> 16), byte(eax >> 24)}

		data := make([]byte, 0, 4*int(count))
		dest := edi
		if c.RFlags.DF {
			dest = edi - 4*(count-1)
		}
		for i := uint32(0); i < count; i++ {
			data = append(data, word...)
		}
		if err := c.WriteString(data, uint64(dest)); err != nil {
			return cpu.PatternResult{}, err
		}

		if c.RFlags.DF {
			c.SetReg32(cpu.RDI, edi-4*count)
		} else {
			c.SetReg32(cpu.RDI, edi+4*count)
		}
		c.SetReg32(cpu.RCX, 0)

		return cpu.PatternResult{Outcome: cpu.PatternSuccess, FinalIP: finalIP}, nil
	}
}
