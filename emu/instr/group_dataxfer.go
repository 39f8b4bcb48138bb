/*
   x86core - data transfer and miscellaneous single-byte opcodes.

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

func registerDataTransfer(l *List) {
	// 0x00 is architecturally ADD Eb,Gb, but this subset never decodes
	// its ModRM byte: it is registered purely as a single-byte no-op so
	// that jumping into zeroed/demand-zero memory - the common real-world
	// trigger for the infinite-loop guard (spec 4.8) - decodes instead of
	// faulting on every one of its zero bytes.
	l.register(0x00, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec:   func(c *cpu.CPU) (int, cpu.Status, error) { return 1, cpu.StatusSuccess, nil },
	})

	l.register(0x90, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec:   func(c *cpu.CPU) (int, cpu.Status, error) { return 1, cpu.StatusSuccess, nil },
	})

	l.register(0xF4, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec:   func(c *cpu.CPU) (int, cpu.Status, error) { return 1, cpu.StatusHalt, nil },
	})

	// MOV r32, imm32 (0xB8+r): loads a 32-bit immediate into one of
	// the low 8 GPRs. This core's subset never sets the REX.B bit that
	// would extend it to R8-R15, matching the compatibility-mode
	// programs the concrete scenarios exercise.
	for i := 0; i < 8; i++ {
		reg := i
		l.register(byte(0xB8+i), cpu.Instruction{
			Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 5, false, nil },
			Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
				imm, err := c.ReadDword(c.RIP - 4)
				if err != nil {
					return 5, cpu.StatusSuccess, err
				}
				c.SetReg32(reg, imm)
				return 5, cpu.StatusSuccess, nil
			},
		})
	}
}
