/*
   x86core - executor-facing contracts: the Status a handler returns,
   the Handler/List tables the executor dispatches through, the
   optional Tracer hook, and the fault/error types the executor's dispatch loop reacts to.

   Adapted from the S370 Device interface pattern (Copyright (c) 2024,
   Richard Cornwell): the teacher defines small consumer-side
   interfaces in the package that calls them (emu/core calls into
   Device, never the reverse), which keeps emu/instr free to import
   emu/cpu without emu/cpu ever importing emu/instr. The same shape is
   used here for Handler/List so concrete opcode implementations live
   in emu/instr while the executor only depends on this interface.

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

import "fmt"

// Status is the per-instruction outcome a Handler hands back to the
// executor (spec 9, "model this explicitly in the status type with
// three variants: CONTINUE, SUCCESS, and EXIT-like terminal values").
// Architectural faults are not a Status value: handlers report them by
// returning a *FaultException instead.
type Status uint8

const (
	// StatusContinue means the byte just processed was prefix-only
	// (legacy prefix, REX, REP/REPNE): the executor must not clear
	// transient overrides and must re-enter decode at the next byte
	// with those overrides still live.
	StatusContinue Status = iota
	// StatusSuccess means a complete instruction executed. The
	// executor compares the CPU's RIP against the expected
	// fall-through address to tell whether an internal jump occurred.
	StatusSuccess
	// StatusHalt means the processor executed HLT; the executor stays
	// halted, and each Step only delivers pending interrupts, until
	// Executor.Resume clears the halt.
	StatusHalt
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "CONTINUE"
	case StatusSuccess:
		return "SUCCESS"
	case StatusHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// Handler runs one instruction's (or prefix byte's) semantics against
// the CPU, returning the number of opcode bytes it consumed and the
// resulting Status. A non-nil error is always either *FaultException
// or *ExecutionError.
type Handler func(c *CPU) (length int, status Status, err error)

// Decoder computes an instruction's length and whether it is a
// control-flow boundary (spec 4.6) by peeking bytes at ip, without
// running any semantics or mutating CPU state. Translation Block
// construction uses only Decoder; running instructions uses Handler.
// Keeping them separate is what lets a TB pre-decode instructions
// that have not executed yet (spec 4.3, "saves and restores the
// memory offset, so it is transparent to the caller's IP").
type Decoder func(c *CPU, ip uint64) (length int, boundary bool, err error)

// Instruction bundles the peek-only Decoder used for TB construction
// with the Handler used for actual execution. The two must agree on
// length for the same bytes (spec 8, "decode-cache idempotence").
type Instruction struct {
	Decode Decoder
	Exec   Handler
}

// List maps an opcode byte to the Instruction that implements it.
// Legacy/REX prefix bytes are looked up like any other byte: each is
// registered as its own one-byte CONTINUE instruction.
// Concrete Lists are built by emu/instr; the executor and decode cache
// only ever call Lookup.
type List interface {
	// Lookup returns the Instruction registered for opcode byte b, and
	// whether one is registered at all (an unregistered byte is a
	// decode fault, spec 7 "Undefined opcode").
	Lookup(b byte) (Instruction, bool)
	// MaxOpcodeLength is the architectural cap (15 for x86) on one
	// instruction's length. The decode cache does not consult it, since
	// each prefix byte of a redundant prefix run decodes as its own
	// one-byte entry.
	MaxOpcodeLength() int
}

// Tracer receives a callback after every instruction and every
// Translation Block exit, for following execution without slowing
// normal dispatch down (a nil Tracer means no-op, checked by the
// executor before every call).
type Tracer interface {
	OnInstruction(c *CPU, ip uint64, length int, status Status)
	OnBlockExit(c *CPU, entryIP, exitIP uint64, instructionCount int)
}

// FaultException is raised by instruction handlers (division by zero,
// invalid opcode, general protection, page fault, breakpoint) and
// carries enough information for interrupt delivery to push the right
// frame (spec 7, "Fault taxonomy").
type FaultException struct {
	Vector    uint8
	ErrorCode uint16
	HasCode   bool
	FaultIP   uint64 // current_ip - opcode length (spec 7, "fault-IP identity")
	Linear    uint64 // only meaningful for #PF
	Message   string
}

func (f *FaultException) Error() string {
	if f.HasCode {
		return fmt.Sprintf("fault vector=%d code=%#x at ip=%#x: %s", f.Vector, f.ErrorCode, f.FaultIP, f.Message)
	}
	return fmt.Sprintf("fault vector=%d at ip=%#x: %s", f.Vector, f.FaultIP, f.Message)
}

// Well-known fault vectors used by this core.
const (
	VectorDivideError     uint8 = 0
	VectorDebug           uint8 = 1
	VectorBreakpoint      uint8 = 3
	VectorInvalidOpcode   uint8 = 6
	VectorDoubleFault     uint8 = 8
	VectorGeneralProtect  uint8 = 13
	VectorPageFault       uint8 = 14
)

// ExecutionError reports a condition the executor itself detects
// outside of any single handler: the zero-opcode infinite-loop guard
// tripping. Reaching MaxChainDepth is not an error (Step just returns),
// and an opcode with no registered Handler raises a #UD FaultException.
type ExecutionError struct {
	IP      uint64
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error at ip=%#x: %s", e.IP, e.Message)
}

// NewFault builds a FaultException with no error code, computing
// FaultIP from the current ip and the length of the faulting opcode
// (spec 7: "fault_ip = current_ip - opcode length").
func NewFault(vector uint8, ip uint64, opcodeLen int, msg string) *FaultException {
	return &FaultException{Vector: vector, FaultIP: ip - uint64(opcodeLen), Message: msg}
}

// NewFaultWithCode is NewFault plus an explicit error code (page
// faults, general-protection faults with a segment selector code).
func NewFaultWithCode(vector uint8, code uint16, ip uint64, opcodeLen int, msg string) *FaultException {
	return &FaultException{Vector: vector, ErrorCode: code, HasCode: true, FaultIP: ip - uint64(opcodeLen), Message: msg}
}
