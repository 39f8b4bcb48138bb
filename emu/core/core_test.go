/*
   x86core - core dispatch-loop tests: run/stop, step, examine/deposit,
   breakpoints, and reset routed through master.Packet.

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

package core_test

import (
	"testing"
	"time"

	"github.com/rcornwell/x86core/emu/core"
	"github.com/rcornwell/x86core/emu/cpu"
	"github.com/rcornwell/x86core/emu/instr"
	"github.com/rcornwell/x86core/emu/master"
	"github.com/rcornwell/x86core/emu/memory"
)

type noInterrupts struct{}

func (noInterrupts) DeliverPendingInterrupts(*cpu.CPU) {}
func (noInterrupts) RaiseFault(*cpu.CPU, uint8, uint64, uint16, bool, uint64) bool {
	return false
}

type noTicks struct{}

func (noTicks) Tick(*cpu.CPU) {}

type noScreen struct{}

func (noScreen) FlushIfNeeded(*cpu.CPU) {}

func newCore(t *testing.T) (*core.Core, *cpu.CPU) {
	t.Helper()
	store := memory.NewStore(64*1024, 64*1024)
	tr := memory.NewTranslator(store)
	c := cpu.New()
	c.SetMemory(memory.NewPagedView(store, tr, c))

	list := instr.NewStandardList()
	patterns := cpu.NewPatternRegistry(cpu.PatternDetectionThreshold)
	exec := cpu.NewExecutor(c, list, patterns, noInterrupts{}, noTicks{}, noScreen{})
	return core.New(exec, nil), c
}

// send posts pkt and waits for its reply, failing the test if none
// arrives within a generous timeout - the core loop should always
// drain its master channel between steps.
func send(t *testing.T, co *core.Core, pkt master.Packet) master.Reply {
	t.Helper()
	pkt.Reply = make(chan master.Reply, 1)
	co.Master() <- pkt
	select {
	case r := <-pkt.Reply:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for core reply")
		return master.Reply{}
	}
}

func TestStepExecutesOneInstruction(t *testing.T) {
	co, _ := newCore(t)
	co.Start()
	defer co.Stop()

	// The dispatch goroutine runs freely over the (zeroed) store after
	// Start, so pause it, seed a lone HLT through a Deposit packet and
	// point RIP at it. A NOP would not do: Step follows chained
	// Translation Blocks, so a NOP followed by zeroed memory runs on
	// into the zero-opcode guard within the same Step.
	if r := send(t, co, master.Packet{Cmd: master.CmdStop}); r.Err != nil {
		t.Fatalf("stop: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdDeposit, Addr: 0, Width: 1, Value: 0xF4}); r.Err != nil {
		t.Fatalf("seeding program: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdReset, Addr: 0}); r.Err != nil {
		t.Fatalf("reset: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdStep}); r.Err != nil {
		t.Fatalf("step: %v", r.Err)
	}

	if rip, _, _, _ := co.Registers(); rip != 1 {
		t.Errorf("RIP after one step = %#x, want 0x1", rip)
	}
}

func TestDepositThenExamineRoundTrip(t *testing.T) {
	co, _ := newCore(t)
	co.Start()
	defer co.Stop()

	if r := send(t, co, master.Packet{Cmd: master.CmdDeposit, Addr: 0x2000, Width: 4, Value: 0xCAFEBABE}); r.Err != nil {
		t.Fatalf("deposit: %v", r.Err)
	}
	r := send(t, co, master.Packet{Cmd: master.CmdExamine, Addr: 0x2000, Width: 4})
	if r.Err != nil {
		t.Fatalf("examine: %v", r.Err)
	}
	if r.Value != 0xCAFEBABE {
		t.Errorf("examine = %#x, want 0xCAFEBABE", r.Value)
	}
}

func TestResetRelocatesRIPAndInvalidatesCaches(t *testing.T) {
	co, _ := newCore(t)
	co.Start()
	defer co.Stop()

	if r := send(t, co, master.Packet{Cmd: master.CmdDeposit, Addr: 0x8000, Width: 1, Value: 0xF4}); r.Err != nil { // HLT
		t.Fatalf("seeding program: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdReset, Addr: 0x8000}); r.Err != nil {
		t.Fatalf("reset: %v", r.Err)
	}

	rip, _, _, _ := co.Registers()
	if rip != 0x8000 {
		t.Fatalf("RIP after reset = %#x, want %#x", rip, uint64(0x8000))
	}
}

func TestRunStopsOnBreakpoint(t *testing.T) {
	co, c := newCore(t)

	// Start immediately begins running over a zeroed store (0x00 decodes
	// as a no-op), so pause it first before writing the real program -
	// otherwise the writes would race the dispatch goroutine.
	co.Start()
	defer co.Stop()
	if r := send(t, co, master.Packet{Cmd: master.CmdStop}); r.Err != nil {
		t.Fatalf("stop: %v", r.Err)
	}

	// NOP, then JMP +0 (a control-flow boundary, so the Translation
	// Block built from address 0 ends there), then another JMP +0 at
	// address 3 and HLT at address 5. The core only re-checks
	// breakpoints between Step calls, and one Step follows chain edges
	// into every following installable TB, so the breakpoint must sit
	// where Step hands control back: a lone boundary instruction such
	// as the JMP at address 3 forms a one-entry block, which is below
	// MinTBInstructions and never installed, so Step returns there.
	prog := []byte{0x90, 0xEB, 0x00, 0xEB, 0x00, 0xF4}
	for i, b := range prog {
		if err := c.WriteByte(uint64(i), b); err != nil {
			t.Fatalf("seeding program: %v", err)
		}
	}

	if r := send(t, co, master.Packet{Cmd: master.CmdReset, Addr: 0}); r.Err != nil {
		t.Fatalf("reset: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdSetBreak, Addr: 3}); r.Err != nil {
		t.Fatalf("set breakpoint: %v", r.Err)
	}
	if r := send(t, co, master.Packet{Cmd: master.CmdRun}); r.Err != nil {
		t.Fatalf("run: %v", r.Err)
	}

	deadline := time.After(2 * time.Second)
	for {
		rip, _, _, _ := co.Registers()
		if rip == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("breakpoint never stopped dispatch, RIP = %#x", rip)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
