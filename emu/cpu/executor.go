/*
   x86core - instruction executor: the fetch-decode-execute dispatch
   loop orchestrating the decode cache, Translation Blocks, and the
   hot-pattern registry.

   Grounded on spec 4.5/4.8 and on the S370 cpuState.run dispatch loop
   (Copyright (c) 2024, Richard Cornwell) for its overall shape: a
   single method stepping one unit of work, delegating faults to an
   injected interrupt-delivery collaborator, and calling out to a tick
   registry and device layer between units of work rather than owning
   them.

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

// MaxChainDepth bounds how many TBs may chain before the outer loop
// regains control (spec 4.5, "chain-bound liveness").
const MaxChainDepth = 16

// HotspotThreshold is the hit count (spec 4.5 step 6) at which the
// executor attempts to build a TB. The repository this core is
// modeled on carries two coexisting thresholds historically; this
// core picks a single policy (see design notes): every IP not already
// covered by a TB or pattern is a TB candidate on its very next visit.
const HotspotThreshold = 1

// PatternDetectionThreshold is the separate occurrence count (spec
// 4.4) gating hot-pattern signature probing, kept distinct from
// HotspotThreshold so cold code is not charged pattern-matching cost.
const PatternDetectionThreshold = 10

// ZeroOpcodeGuardLimit is the default consecutive-0x00 limit before
// the infinite-loop guard trips (spec 4.8).
const ZeroOpcodeGuardLimit = 255

const patternPeekWindow = 16

// InterruptDelivery is the external collaborator that delivers queued
// interrupts and turns a raised fault into a vectored transfer (spec
// 6). linear is only meaningful for a page fault (spec 8: "CR2 is set
// to the faulting linear address") and is zero for every other vector.
type InterruptDelivery interface {
	DeliverPendingInterrupts(c *CPU)
	RaiseFault(c *CPU, vector uint8, faultIP uint64, errorCode uint16, hasCode bool, linear uint64) bool
}

// TickRegistry advances whatever periodic state the host wires in
// (timers, device polling) once per suspension point (spec 5).
type TickRegistry interface {
	Tick(c *CPU)
}

// Screen is the external collaborator flushed at every suspension
// point (spec 6).
type Screen interface {
	FlushIfNeeded(c *CPU)
}

// Executor is the dispatch loop described by spec 4.5. It owns the
// decode cache, TB table, and pattern registry, and holds references
// to the CPU and its external collaborators.
type Executor struct {
	CPU      *CPU
	List     List
	Decode   *DecodeCache
	TBs      *TBTable
	Patterns *PatternRegistry
	Tracer   Tracer

	Interrupts InterruptDelivery
	Ticks      TickRegistry
	Screen     Screen

	hitCounts map[uint64]int

	zeroRun int
	halted  bool
}

// NewExecutor builds an executor over c, wiring the CPU's
// self-modifying-code invalidation hook to this executor's caches.
func NewExecutor(c *CPU, list List, patterns *PatternRegistry, interrupts InterruptDelivery, ticks TickRegistry, screen Screen) *Executor {
	ex := &Executor{
		CPU:        c,
		List:       list,
		Decode:     NewDecodeCache(),
		TBs:        NewTBTable(),
		Patterns:   patterns,
		Interrupts: interrupts,
		Ticks:      ticks,
		Screen:     screen,
		hitCounts:  make(map[uint64]int),
	}
	c.SetInvalidateHook(func(bool) { ex.InvalidateCaches() })
	return ex
}

// InvalidateCaches discards the decode cache, TB table, and pattern
// caches (spec 4.7 / spec 6, "invalidate_caches()").
func (ex *Executor) InvalidateCaches() {
	ex.Decode.Invalidate()
	ex.TBs.Invalidate()
	ex.Patterns.Invalidate()
	ex.hitCounts = make(map[uint64]int)
}

// Halted reports whether the processor is parked in HLT.
func (ex *Executor) Halted() bool { return ex.halted }

// Resume clears a halted state (the host calls this once an unmasked
// interrupt is pending).
func (ex *Executor) Resume() { ex.halted = false }

func (ex *Executor) peekBytes(ip uint64, n int) []byte {
	mem := ex.CPU.Mem()
	out := make([]byte, 0, n)
	mem.InstructionFetch = true
	defer func() { mem.InstructionFetch = false }()
	for i := 0; i < n; i++ {
		b, pf := mem.ReadByte(ip + uint64(i))
		if pf != nil {
			break
		}
		out = append(out, b)
	}
	return out
}

// Step performs one unit of dispatch per spec 4.5's numbered
// algorithm and returns any terminal error (ExecutionError, or a
// FaultException that interrupt delivery could not handle).
func (ex *Executor) Step() error {
	if ex.halted {
		ex.Interrupts.DeliverPendingInterrupts(ex.CPU)
		return nil
	}

	c := ex.CPU
	ip := c.RIP

	c.SyncCompatibilityModeWithCS()
	c.MarkPageExecuted(ip)

	if c.IterationActive() {
		return ex.singleStep(ip)
	}

	peek := ex.peekBytes(ip, patternPeekWindow)
	if res, matched, err := ex.Patterns.Try(c, ip, peek); err != nil {
		return ex.handleFault(err)
	} else if matched && res.Outcome == PatternSuccess {
		c.RIP = res.FinalIP
		if ex.Tracer != nil {
			ex.Tracer.OnInstruction(c, ip, 0, StatusSuccess)
		}
		return nil
	}

	if tb, ok := ex.TBs.Lookup(ip); ok {
		return ex.runChain(tb)
	}

	ex.hitCounts[ip]++
	if ex.hitCounts[ip] >= HotspotThreshold {
		tb, fault := BuildTB(c, ex.List, ex.Decode, ip)
		if fault != nil {
			return ex.handleFault(fault)
		}
		if len(tb.Entries) >= MinTBInstructions {
			ex.TBs.Install(tb)
			return ex.runChain(tb)
		}
	}

	return ex.singleStep(ip)
}

func (ex *Executor) singleStep(ip uint64) error {
	c := ex.CPU
	entry, fault := ex.Decode.Decode(c, ex.List, ip)
	if fault != nil {
		return ex.handleFault(fault)
	}

	if err := ex.trackZeroOpcodeGuard(entry, ip); err != nil {
		return err
	}

	expected := ip + uint64(entry.Length)
	c.SetExecStartIP(ip)
	c.RIP = expected
	_, status, execErr := entry.Instr.Exec(c)
	if ex.Tracer != nil {
		ex.Tracer.OnInstruction(c, ip, entry.Length, status)
	}
	if execErr != nil {
		return ex.handleFault(execErr)
	}
	if status == StatusContinue {
		return nil
	}
	// A REP-prefixed string op that rewound RIP to loop again is not
	// done yet: its prefixes (Rep in particular) must survive into the
	// next singleStep call that re-decodes the same IP, or repCount
	// would see them cleared and break the loop after its first
	// iteration regardless of the original count.
	if !c.IterationActive() {
		c.ClearTransientOverrides()
	}
	if status == StatusHalt {
		ex.halted = true
	}
	return nil
}

func (ex *Executor) trackZeroOpcodeGuard(entry DecodeEntry, ip uint64) error {
	if len(entry.OpcodeBytes) == 1 && entry.OpcodeBytes[0] == 0x00 {
		ex.zeroRun++
		if ex.zeroRun > ZeroOpcodeGuardLimit {
			return &ExecutionError{IP: ip, Message: "infinite-loop guard: too many consecutive zero opcodes"}
		}
		return nil
	}
	ex.zeroRun = 0
	return nil
}

// runChain executes tb and follows exit_ip chaining up to
// MaxChainDepth, per spec 4.5's "TB chain loop".
func (ex *Executor) runChain(tb *TB) error {
	c := ex.CPU
	depth := 0
	for {
		exitIP, status, err := tb.Execute(c, ex.Tracer, ex.trackZeroOpcodeGuard)
		if err != nil {
			return ex.handleFault(err)
		}
		c.RIP = exitIP
		if ex.Tracer != nil {
			ex.Tracer.OnBlockExit(c, tb.StartIP, exitIP, len(tb.Entries))
		}
		if status == StatusContinue {
			return nil
		}
		if !c.IterationActive() {
			c.ClearTransientOverrides()
		}
		if status == StatusHalt {
			ex.halted = true
			return nil
		}

		peek := ex.peekBytes(exitIP, patternPeekWindow)
		if res, matched, perr := ex.Patterns.Try(c, exitIP, peek); perr != nil {
			return ex.handleFault(perr)
		} else if matched && res.Outcome == PatternSuccess {
			c.RIP = res.FinalIP
			return nil
		}

		next, ok := ex.TBs.ChainedAt(tb, exitIP)
		if !ok {
			next, ok = ex.TBs.Lookup(exitIP)
			if !ok {
				ex.hitCounts[exitIP]++
				if ex.hitCounts[exitIP] >= HotspotThreshold {
					built, fault := BuildTB(c, ex.List, ex.Decode, exitIP)
					if fault != nil {
						return ex.handleFault(fault)
					}
					if len(built.Entries) >= MinTBInstructions {
						ex.TBs.Install(built)
						next, ok = built, true
					}
				}
			}
			if ok {
				ex.TBs.Chain(tb, exitIP, next)
			}
		}

		ex.Ticks.Tick(c)
		ex.Interrupts.DeliverPendingInterrupts(c)
		ex.Screen.FlushIfNeeded(c)

		if c.RIP != exitIP {
			// Interrupt/tick changed IP away from the chain target:
			// stop chaining so control resumes at the handler.
			return nil
		}
		if !ok || next == tb {
			return nil
		}

		tb = next
		depth++
		if depth >= MaxChainDepth {
			return nil
		}
	}
}

// handleFault implements spec 4.5's fault-handling steps: hand the
// fault to interrupt delivery; on success resume at the new IP, on
// failure rethrow.
func (ex *Executor) handleFault(err error) error {
	fe, ok := err.(*FaultException)
	if !ok {
		return err
	}
	delivered := ex.Interrupts.RaiseFault(ex.CPU, fe.Vector, fe.FaultIP, fe.ErrorCode, fe.HasCode, fe.Linear)
	if delivered {
		return nil
	}
	return fe
}
