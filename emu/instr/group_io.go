/*
   x86core - port-mapped I/O opcodes (IN/OUT).

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

// A CPU with no bus wired treats every port as floating, matching
// cpu.PortBus's own documented contract for the nil case.
func portIn(c *cpu.CPU, addr uint16, width int) uint32 {
	if bus := c.Ports(); bus != nil {
		return bus.In(addr, width)
	}
	return 0xFFFFFFFF
}

func portOut(c *cpu.CPU, addr uint16, width int, value uint32) {
	if bus := c.Ports(); bus != nil {
		bus.Out(addr, width, value)
	}
}

func registerIO(l *List) {
	// IN AL, imm8 (0xE4) / OUT imm8, AL (0xE6): fixed-width byte access
	// to a port named by an immediate address.
	l.register(0xE4, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			imm, err := c.ReadByte(c.RIP - 1)
			if err != nil {
				return 2, cpu.StatusSuccess, err
			}
			c.SetReg8(cpu.RAX, byte(portIn(c, uint16(imm), 1)))
			return 2, cpu.StatusSuccess, nil
		},
	})
	l.register(0xE6, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			imm, err := c.ReadByte(c.RIP - 1)
			if err != nil {
				return 2, cpu.StatusSuccess, err
			}
			portOut(c, uint16(imm), 1, uint32(c.Reg8(cpu.RAX)))
			return 2, cpu.StatusSuccess, nil
		},
	})

	// IN eAX, imm8 (0xE5) / OUT imm8, eAX (0xE7): same addressing, but
	// the operand-size override (0x66) narrows the transfer to a word
	// instead of this subset's default dword.
	l.register(0xE5, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			imm, err := c.ReadByte(c.RIP - 1)
			if err != nil {
				return 2, cpu.StatusSuccess, err
			}
			if c.Prefixes().OperandSize {
				c.SetReg16(cpu.RAX, uint16(portIn(c, uint16(imm), 2)))
			} else {
				c.SetReg32(cpu.RAX, portIn(c, uint16(imm), 4))
			}
			return 2, cpu.StatusSuccess, nil
		},
	})
	l.register(0xE7, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 2, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			imm, err := c.ReadByte(c.RIP - 1)
			if err != nil {
				return 2, cpu.StatusSuccess, err
			}
			if c.Prefixes().OperandSize {
				portOut(c, uint16(imm), 2, uint32(c.Reg16(cpu.RAX)))
			} else {
				portOut(c, uint16(imm), 4, c.Reg32(cpu.RAX))
			}
			return 2, cpu.StatusSuccess, nil
		},
	})

	// IN AL, DX (0xEC) / OUT DX, AL (0xEE): the port address comes from
	// DX rather than an immediate, the form real-mode firmware uses to
	// probe a port range without self-modifying code.
	l.register(0xEC, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			c.SetReg8(cpu.RAX, byte(portIn(c, c.Reg16(cpu.RDX), 1)))
			return 1, cpu.StatusSuccess, nil
		},
	})
	l.register(0xEE, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			portOut(c, c.Reg16(cpu.RDX), 1, uint32(c.Reg8(cpu.RAX)))
			return 1, cpu.StatusSuccess, nil
		},
	})

	// IN eAX, DX (0xED) / OUT DX, eAX (0xEF).
	l.register(0xED, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			if c.Prefixes().OperandSize {
				c.SetReg16(cpu.RAX, uint16(portIn(c, c.Reg16(cpu.RDX), 2)))
			} else {
				c.SetReg32(cpu.RAX, portIn(c, c.Reg16(cpu.RDX), 4))
			}
			return 1, cpu.StatusSuccess, nil
		},
	})
	l.register(0xEF, cpu.Instruction{
		Decode: func(_ *cpu.CPU, _ uint64) (int, bool, error) { return 1, false, nil },
		Exec: func(c *cpu.CPU) (int, cpu.Status, error) {
			if c.Prefixes().OperandSize {
				portOut(c, c.Reg16(cpu.RDX), 2, uint32(c.Reg16(cpu.RAX)))
			} else {
				portOut(c, c.Reg16(cpu.RDX), 4, c.Reg32(cpu.RAX))
			}
			return 1, cpu.StatusSuccess, nil
		},
	})
}
