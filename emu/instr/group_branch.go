/*
   x86core - control-flow opcodes: short/near jumps, short conditional
   jumps, calls, returns, and the INT3 software interrupt.

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

func registerBranch(l *List) {
	// JMP rel8 (short).
	l.register(0xEB, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, true, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			rel, err := c.ReadByte(c.RIP - 1)
			if err != nil {
				return 2, cpu.StatusSuccess, err
			}
			c.RIP = c.RIP + uint64(int64(int8(rel)))
			return 2, cpu.StatusSuccess, nil
		},
	})

	// CALL rel32 (near, relative): pushes the return address (the
	// address of the following instruction) onto a flat stack at ESP.
	l.register(0xE8, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 5, true, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			rel, err := c.ReadDword(c.RIP - 4)
			if err != nil {
				return 5, cpu.StatusSuccess, err
			}
			ret := c.RIP
			esp := c.Reg32(cpu.RSP) - 4
			c.SetReg32(cpu.RSP, esp)
			if err := c.WriteDword(uint64(esp), uint32(ret)); err != nil {
				return 5, cpu.StatusSuccess, err
			}
			c.RIP = ret + uint64(int64(int32(rel)))
			return 5, cpu.StatusSuccess, nil
		},
	})

	// JMP rel32 (near, relative).
	l.register(0xE9, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 5, true, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			rel, err := c.ReadDword(c.RIP - 4)
			if err != nil {
				return 5, cpu.StatusSuccess, err
			}
			c.RIP = c.RIP + uint64(int64(int32(rel)))
			return 5, cpu.StatusSuccess, nil
		},
	})

	// RET (near): pops the return address off a flat ESP stack.
	l.register(0xC3, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, true, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			esp := c.Reg32(cpu.RSP)
			ret, err := c.ReadDword(uint64(esp))
			if err != nil {
				return 1, cpu.StatusSuccess, err
			}
			c.SetReg32(cpu.RSP, esp+4)
			c.RIP = uint64(ret)
			return 1, cpu.StatusSuccess, nil
		},
	})

	// INT3 (breakpoint trap): raises vector 3 for the host debug
	// console to intercept via interrupt delivery.
	l.register(0xCC, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, true, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			return 1, cpu.StatusSuccess, cpu.NewFault(cpu.VectorBreakpoint, c.RIP, 1, "INT3")
		},
	})

	registerShortJcc(l)
}

// conditionCode evaluates the x86 short-Jcc condition selected by the
// low nibble of a 0x70-0x7F opcode against the current flags.
func conditionCode(nibble byte, f cpu.Flags) bool {
	switch nibble {
	case 0x0: // JO
		return f.OF
	case 0x1: // JNO
		return !f.OF
	case 0x2: // JB/JC
		return f.CF
	case 0x3: // JAE/JNC
		return !f.CF
	case 0x4: // JE/JZ
		return f.ZF
	case 0x5: // JNE/JNZ
		return !f.ZF
	case 0x6: // JBE
		return f.CF || f.ZF
	case 0x7: // JA
		return !f.CF && !f.ZF
	case 0x8: // JS
		return f.SF
	case 0x9: // JNS
		return !f.SF
	case 0xA: // JP
		return f.PF
	case 0xB: // JNP
		return !f.PF
	case 0xC: // JL
		return f.SF != f.OF
	case 0xD: // JGE
		return f.SF == f.OF
	case 0xE: // JLE
		return f.ZF || f.SF != f.OF
	case 0xF: // JG
		return !f.ZF && f.SF == f.OF
	default:
		return false
	}
}

func registerShortJcc(l *List) {
	for n := 0; n <= 0xF; n++ {
		nibble := byte(n)
		l.register(byte(0x70+n), cpu.Instruction{
			Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, true, nil },
			Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
				rel, err := c.ReadByte(c.RIP - 1)
				if err != nil {
					return 2, cpu.StatusSuccess, err
				}
				if conditionCode(nibble, c.RFlags) {
					c.RIP = c.RIP + uint64(int64(int8(rel)))
				}
				return 2, cpu.StatusSuccess, nil
			},
		})
	}
}
