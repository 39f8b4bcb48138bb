/*
   x86core - dispatch-loop tests: decode cache, Translation Block
   construction and chaining, REP-prefixed string iteration, the
   infinite-loop guard, hot-pattern/interpreter equivalence, and
   paged-memory fault delivery.

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

package cpu_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rcornwell/x86core/emu/cpu"
	"github.com/rcornwell/x86core/emu/instr"
	"github.com/rcornwell/x86core/emu/memory"
	"github.com/rcornwell/x86core/emu/pattern"
)

// --- fixtures -----------------------------------------------------

type noInterrupts struct{}

func (noInterrupts) DeliverPendingInterrupts(*cpu.CPU) {}
func (noInterrupts) RaiseFault(*cpu.CPU, uint8, uint64, uint16, bool, uint64) bool {
	return false
}

type noTicks struct{}

func (noTicks) Tick(*cpu.CPU) {}

type noScreen struct{}

func (noScreen) FlushIfNeeded(*cpu.CPU) {}

// newCPU builds a CPU over a flat 64KiB store with paging disabled, so
// linear addresses below 1MiB behave as physical addresses (real
// mode's 20-bit mask never wraps at this size).
func newCPU(t *testing.T) *cpu.CPU {
	t.Helper()
	store := memory.NewStore(64*1024, 64*1024)
	tr := memory.NewTranslator(store)
	c := cpu.New()
	mem := memory.NewPagedView(store, tr, c)
	c.SetMemory(mem)
	return c
}

// newExecutor wires c to list with no hot-pattern recognizers, so
// every test that cares about the plain interpreter loop is immune to
// the pattern registry compiling a bulk fast path underneath it.
func newExecutor(c *cpu.CPU, list cpu.List) *cpu.Executor {
	patterns := cpu.NewPatternRegistry(cpu.PatternDetectionThreshold)
	return cpu.NewExecutor(c, list, patterns, noInterrupts{}, noTicks{}, noScreen{})
}

func loadBytes(t *testing.T, c *cpu.CPU, addr uint64, data []byte) {
	t.Helper()
	for i, b := range data {
		if err := c.WriteByte(addr+uint64(i), b); err != nil {
			t.Fatalf("loading program byte %d: %v", i, err)
		}
	}
}

// runUntilHalted drives ex.Step() until the processor executes HLT.
// Every REP-prefixed test program ends with an explicit HLT byte so
// this has a deterministic stopping point regardless of how many
// trailing no-op bytes the Translation Block builder happens to sweep
// up beyond the instruction under test (0x00 and HLT itself are not
// control-flow boundaries, so BuildTB keeps extending a block through
// them; only running into the HLT entry actually stops dispatch).
func runUntilHalted(t *testing.T, ex *cpu.Executor, c *cpu.CPU) {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if ex.Halted() {
			return
		}
		if err := ex.Step(); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
	}
	t.Fatalf("executor never halted (stuck at RIP %#x)", c.RIP)
}

// --- decode cache / control-flow boundary classification ----------

func TestDecodeCacheIdempotence(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	loadBytes(t, c, 0, []byte{0xB8, 0x11, 0x22, 0x33, 0x44}) // MOV EAX, imm32

	cache := cpu.NewDecodeCache()
	first, fault := cache.Decode(c, list, 0)
	if fault != nil {
		t.Fatalf("first decode faulted: %v", fault)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", cache.Len())
	}

	second, fault := cache.Decode(c, list, 0)
	if fault != nil {
		t.Fatalf("second decode faulted: %v", fault)
	}
	if diff := cmp.Diff(first.Length, second.Length); diff != "" {
		t.Fatalf("Length mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.OpcodeBytes, second.OpcodeBytes); diff != "" {
		t.Fatalf("OpcodeBytes mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Boundary, second.Boundary); diff != "" {
		t.Fatalf("Boundary mismatch (-first +second):\n%s", diff)
	}
	if cache.Len() != 1 {
		t.Fatalf("decode miss on a cache hit: cache grew to %d entries", cache.Len())
	}
}

func TestDecodeCacheRedundantPrefixRun(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	// A redundant run of segment-override prefixes ahead of NOP: each
	// byte decodes to its own one-byte cache entry, and the run never
	// exceeds MaxOpcodeLength.
	loadBytes(t, c, 0, []byte{0x2E, 0x2E, 0x3E, 0x90})

	cache := cpu.NewDecodeCache()
	for ip, want := range map[uint64]struct {
		length   int
		boundary bool
	}{
		0: {1, false},
		1: {1, false},
		2: {1, false},
		3: {1, false},
	} {
		entry, fault := cache.Decode(c, list, ip)
		if fault != nil {
			t.Fatalf("decode at %d faulted: %v", ip, fault)
		}
		if entry.Length != want.length {
			t.Errorf("ip %d: length = %d, want %d", ip, entry.Length, want.length)
		}
		if entry.Boundary != want.boundary {
			t.Errorf("ip %d: boundary = %v, want %v", ip, entry.Boundary, want.boundary)
		}
	}
}

func TestIsControlFlowBoundary(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		want  bool
	}{
		{"HLT is not a boundary", []byte{0xF4}, false},
		{"NOP is not a boundary", []byte{0x90}, false},
		{"zero opcode is not a boundary", []byte{0x00}, false},
		{"REP prefix is a boundary", []byte{0xF3, 0xAB}, true},
		{"REPNE prefix is a boundary", []byte{0xF2, 0xAE}, true},
		{"short JMP is a boundary", []byte{0xEB, 0x02}, true},
		{"short Jcc is a boundary", []byte{0x74, 0x02}, true},
		{"near CALL is a boundary", []byte{0xE8, 0, 0, 0, 0}, true},
		{"RET is a boundary", []byte{0xC3}, true},
		{"INT3 is a boundary", []byte{0xCC}, true},
		{"legacy prefix ahead of a boundary opcode still classifies", []byte{0x66, 0xC3}, true},
		{"legacy prefix ahead of a plain opcode does not", []byte{0x66, 0x90}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cpu.IsControlFlowBoundary(tt.bytes); got != tt.want {
				t.Errorf("IsControlFlowBoundary(% x) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}

// --- Translation Block construction and transparency ---------------

func TestBuildTBStopsAtBoundary(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	loadBytes(t, c, 0, []byte{0x90, 0x90, 0xEB, 0x02, 0x90})
	cache := cpu.NewDecodeCache()

	tb, fault := cpu.BuildTB(c, list, cache, 0)
	if fault != nil {
		t.Fatalf("BuildTB faulted: %v", fault)
	}
	if len(tb.Entries) != 3 {
		t.Fatalf("expected 3 entries (NOP, NOP, JMP), got %d", len(tb.Entries))
	}
	if !tb.Entries[2].Boundary {
		t.Fatalf("expected the JMP entry to be flagged as a boundary")
	}
	if tb.TotalLength != 4 {
		t.Fatalf("expected total length 4 (1+1+2), got %d", tb.TotalLength)
	}
}

// TestTBTransparency checks spec 8's "decode results are idempotent
// per IP" property from the executor's side: running the same
// straight-line program through the normal dispatch loop (which will
// compile it into a TB once hot) produces the same architectural
// state as interpreting it one decode-cache entry at a time by hand.
func TestTBTransparency(t *testing.T) {
	program := []byte{0x90, 0x90, 0xB8, 0xEF, 0xBE, 0xAD, 0xDE, 0xF4} // NOP NOP MOV EAX,0xDEADBEEF HLT

	// Reference: interpret by hand, one DecodeCache entry at a time,
	// never touching Executor/TB machinery at all.
	ref := newCPU(t)
	refList := instr.NewStandardList()
	loadBytes(t, ref, 0, program)
	refCache := cpu.NewDecodeCache()
	ip := uint64(0)
	for {
		entry, fault := refCache.Decode(ref, refList, ip)
		if fault != nil {
			t.Fatalf("reference decode at %#x faulted: %v", ip, fault)
		}
		ref.RIP = ip + uint64(entry.Length)
		_, status, err := entry.Instr.Exec(ref)
		if err != nil {
			t.Fatalf("reference exec at %#x failed: %v", ip, err)
		}
		if status == cpu.StatusHalt {
			break
		}
		ip = ref.RIP
	}

	// Under test: run through the executor, which will build and
	// install a TB the first time it sees ip 0 (HotspotThreshold is 1).
	got := newCPU(t)
	gotList := instr.NewStandardList()
	loadBytes(t, got, 0, program)
	ex := newExecutor(got, gotList)
	for i := 0; i < 10 && !ex.Halted(); i++ {
		if err := ex.Step(); err != nil {
			t.Fatalf("executor step %d failed: %v", i, err)
		}
	}
	if !ex.Halted() {
		t.Fatal("expected the executor to reach HLT")
	}

	if diff := cmp.Diff(ref.GPR, got.GPR); diff != "" {
		t.Fatalf("GPR mismatch between single-step and TB execution (-reference +executor):\n%s", diff)
	}
	if ref.RIP != got.RIP {
		t.Fatalf("RIP mismatch: reference=%#x executor=%#x", ref.RIP, got.RIP)
	}
}

// --- REP-prefixed string instructions -------------------------------

func TestRepMovsb(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	const progIP = 0
	loadBytes(t, c, progIP, []byte{0xF3, 0xA4, 0xF4}) // REP MOVSB; HLT

	src, dst := uint64(0x1000), uint64(0x2000)
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	loadBytes(t, c, src, data)

	c.SetReg32(cpu.RSI, uint32(src))
	c.SetReg32(cpu.RDI, uint32(dst))
	c.SetReg32(cpu.RCX, uint32(len(data)))
	c.RIP = progIP

	runUntilHalted(t, ex, c)

	for i, want := range data {
		got, err := c.ReadByte(dst + uint64(i))
		if err != nil {
			t.Fatalf("reading result byte %d: %v", i, err)
		}
		if got != want {
			t.Errorf("byte %d: got %#x want %#x", i, got, want)
		}
	}
	if c.Reg32(cpu.RCX) != 0 {
		t.Errorf("ECX = %d, want 0", c.Reg32(cpu.RCX))
	}
	if c.Reg32(cpu.RSI) != uint32(src)+uint32(len(data)) {
		t.Errorf("ESI = %#x, want %#x", c.Reg32(cpu.RSI), uint32(src)+uint32(len(data)))
	}
	if c.Reg32(cpu.RDI) != uint32(dst)+uint32(len(data)) {
		t.Errorf("EDI = %#x, want %#x", c.Reg32(cpu.RDI), uint32(dst)+uint32(len(data)))
	}
}

func TestRepStosdWithOperandSizeOverride(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	const progIP = 0
	loadBytes(t, c, progIP, []byte{0xF3, 0x66, 0xAB, 0xF4}) // REP STOSD; HLT

	dst := uint64(0x200)
	c.SetReg32(cpu.RDI, uint32(dst))
	c.SetReg32(cpu.RAX, 0xAABBCCDD)
	c.SetReg32(cpu.RCX, 2)
	c.RIP = progIP

	runUntilHalted(t, ex, c)

	for i := 0; i < 2; i++ {
		got, err := c.ReadDword(dst + uint64(i*4))
		if err != nil {
			t.Fatalf("reading dword %d: %v", i, err)
		}
		if got != 0xAABBCCDD {
			t.Errorf("dword %d = %#x, want %#x", i, got, uint32(0xAABBCCDD))
		}
	}
	if c.Reg32(cpu.RCX) != 0 {
		t.Errorf("ECX = %d, want 0", c.Reg32(cpu.RCX))
	}
	if c.Reg32(cpu.RDI) != uint32(dst)+8 {
		t.Errorf("EDI = %#x, want %#x", c.Reg32(cpu.RDI), uint32(dst)+8)
	}
}

func TestRepStosdZeroCountDoesNothing(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	const progIP = 0
	loadBytes(t, c, progIP, []byte{0xF3, 0x66, 0xAB, 0xF4})

	dst := uint64(0x400)
	if err := c.WriteDword(dst, 0x11111111); err != nil {
		t.Fatalf("seeding memory: %v", err)
	}
	c.SetReg32(cpu.RDI, uint32(dst))
	c.SetReg32(cpu.RAX, 0xFFFFFFFF)
	c.SetReg32(cpu.RCX, 0)
	c.RIP = progIP

	runUntilHalted(t, ex, c)

	got, err := c.ReadDword(dst)
	if err != nil {
		t.Fatalf("reading dword: %v", err)
	}
	if got != 0x11111111 {
		t.Errorf("REP STOSD with ECX=0 wrote memory: got %#x", got)
	}
	if c.Reg32(cpu.RDI) != uint32(dst) {
		t.Errorf("EDI moved with ECX=0: got %#x want %#x", c.Reg32(cpu.RDI), uint32(dst))
	}
}

func TestRepneScasbStopsOnFirstMatch(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	const progIP = 0
	loadBytes(t, c, progIP, []byte{0xF2, 0xAE, 0xF4}) // REPNE SCASB; HLT

	buf := uint64(0x3000)
	loadBytes(t, c, buf, []byte{0x11, 0x22, 0x33, 0x99, 0x55})
	c.SetReg32(cpu.RDI, uint32(buf))
	c.SetReg8(cpu.RAX, 0x99)
	c.SetReg32(cpu.RCX, 5)
	c.RIP = progIP

	runUntilHalted(t, ex, c)

	if !c.RFlags.ZF {
		t.Error("expected ZF set on a matching SCASB")
	}
	// The marker sits at offset 3: RDI advances past it (4 bytes). ECX
	// is decremented once per non-matching byte examined (offsets
	// 0,1,2) but NOT on the matching iteration itself, which stops the
	// loop immediately instead of falling through to the decrement.
	if want := uint32(buf) + 4; c.Reg32(cpu.RDI) != want {
		t.Errorf("EDI = %#x, want %#x", c.Reg32(cpu.RDI), want)
	}
	if c.Reg32(cpu.RCX) != 2 {
		t.Errorf("ECX = %d, want 2 (5 - 3 non-matching bytes examined)", c.Reg32(cpu.RCX))
	}
}

func TestRepneScasbNoMatchExhaustsCount(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	const progIP = 0
	loadBytes(t, c, progIP, []byte{0xF2, 0xAE, 0xF4})

	buf := uint64(0x3100)
	loadBytes(t, c, buf, []byte{0x11, 0x22, 0x33, 0x44})
	c.SetReg32(cpu.RDI, uint32(buf))
	c.SetReg8(cpu.RAX, 0x99)
	c.SetReg32(cpu.RCX, 4)
	c.RIP = progIP

	runUntilHalted(t, ex, c)

	if c.RFlags.ZF {
		t.Error("expected ZF clear when no byte matches")
	}
	if c.Reg32(cpu.RCX) != 0 {
		t.Errorf("ECX = %d, want 0", c.Reg32(cpu.RCX))
	}
}

// --- infinite-loop guard -------------------------------------------

func TestZeroOpcodeGuardTrips(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)
	c.RIP = 0 // the store is zero-initialized, so every byte is 0x00.

	var lastErr error
	for i := 0; i < cpu.ZeroOpcodeGuardLimit+10; i++ {
		if err := ex.Step(); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected the infinite-loop guard to trip on a run of 0x00 opcodes")
	}
	if _, ok := lastErr.(*cpu.ExecutionError); !ok {
		t.Fatalf("expected *cpu.ExecutionError, got %T: %v", lastErr, lastErr)
	}
}

func TestZeroOpcodeGuardDoesNotTripOnOrdinaryCode(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	ex := newExecutor(c, list)

	// Fill the store with NOP: the guard only counts consecutive
	// single-byte 0x00 opcodes, so a program with no zero bytes at all
	// must never trip it, no matter how many chained Translation
	// Blocks the executor walks through per Step call (up to
	// MaxChainDepth TBs of MaxTBInstructions each). 50 Step calls walk
	// well past ZeroOpcodeGuardLimit instructions while staying inside
	// the 64KiB store.
	nops := make([]byte, 40*1024)
	for i := range nops {
		nops[i] = 0x90
	}
	loadBytes(t, c, 0, nops)
	c.RIP = 0

	for i := 0; i < 50; i++ {
		if err := ex.Step(); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
	}
}

// --- chain-bound liveness / self-modifying code ----------------------

// movEcxJmp0Block encodes "MOV ECX, idx; JMP +0" (7 bytes): a minimal
// two-entry block whose JMP is a boundary, so BuildTB always installs
// it as its own TB (spec 4.5 step 6, MinTBInstructions), and whose
// target is the very next byte - packing blocks back to back chains
// them in sequence with no gaps to decode through.
func movEcxJmp0Block(idx uint32) []byte {
	return []byte{
		0xB9, byte(idx), byte(idx >> 8), byte(idx >> 16), byte(idx >> 24),
		0xEB, 0x00,
	}
}

// TestChainBoundLivenessCapsBlocksPerStep checks spec 8 testable
// property #5: a single Executor.Step call follows at most
// MaxChainDepth chained TBs before returning control to the caller,
// rather than running an unbounded chain to completion. 20 blocks are
// chained back to back (more than MaxChainDepth), each recording its
// own index in ECX so the test can tell exactly how far a single Step
// call advanced.
func TestChainBoundLivenessCapsBlocksPerStep(t *testing.T) {
	const blockCount = 20
	const blockSize = 7

	var program []byte
	for i := uint32(0); i < blockCount; i++ {
		program = append(program, movEcxJmp0Block(i)...)
	}
	program = append(program, 0xF4) // HLT, reached only once every block has run

	c := newCPU(t)
	list := instr.NewStandardList()
	loadBytes(t, c, 0, program)
	ex := newExecutor(c, list)

	if err := ex.Step(); err != nil {
		t.Fatalf("first Step: unexpected error: %v", err)
	}
	if got := c.Reg32(cpu.RCX); got != cpu.MaxChainDepth-1 {
		t.Fatalf("after one Step, ECX = %d, want %d (block %d was the last to run before the chain bound)",
			got, cpu.MaxChainDepth-1, cpu.MaxChainDepth-1)
	}
	wantRIP := uint64(cpu.MaxChainDepth * blockSize)
	if c.RIP != wantRIP {
		t.Fatalf("after one Step, RIP = %#x, want %#x (start of block %d)", c.RIP, wantRIP, cpu.MaxChainDepth)
	}
	if ex.Halted() {
		t.Fatal("executor halted after a single Step call; the chain bound should have stopped it first")
	}

	runUntilHalted(t, ex, c)
	if got := c.Reg32(cpu.RCX); got != blockCount-1 {
		t.Fatalf("final ECX = %d, want %d (last block to run before HLT)", got, blockCount-1)
	}
}

// TestSelfModifyingWriteInvalidatesCachedDecode checks spec 8 testable
// property #6: a write through CPU.WriteByte that lands on a page
// already used for instruction fetch invalidates the decode cache (and,
// via the same hook, the TB table, pattern cache, and hotspot
// counters), so the next decode at that address sees the new bytes
// instead of a stale cached entry.
func TestSelfModifyingWriteInvalidatesCachedDecode(t *testing.T) {
	c := newCPU(t)
	list := instr.NewStandardList()
	loadBytes(t, c, 0, []byte{0x90}) // NOP
	ex := newExecutor(c, list)

	// Mark the page as executed the way Executor.Step does, without
	// running the full dispatch loop (which would also build and
	// chain-execute a TB here, confounding what this test checks).
	c.MarkPageExecuted(0)

	first, fault := ex.Decode.Decode(c, list, 0)
	if fault != nil {
		t.Fatalf("decoding the NOP: %v", fault)
	}
	if first.Length != 1 {
		t.Fatalf("NOP length = %d, want 1", first.Length)
	}

	// Overwrite the NOP with MOV ECX, imm32's encoding. If the decode
	// cache were not invalidated by this write landing on an executed
	// page, the next Decode at IP 0 would still return the stale
	// one-byte NOP entry instead of re-decoding the five-byte MOV now
	// sitting there.
	movECX := []byte{0xB9, 0x2A, 0x00, 0x00, 0x00}
	for i, b := range movECX {
		if err := c.WriteByte(uint64(i), b); err != nil {
			t.Fatalf("self-modifying write at offset %d: %v", i, err)
		}
	}

	second, fault := ex.Decode.Decode(c, list, 0)
	if fault != nil {
		t.Fatalf("decoding the rewritten MOV: %v", fault)
	}
	if second.Length != 5 {
		t.Fatalf("decoded length after the self-modifying write = %d, want 5 (the decode cache served a stale NOP)", second.Length)
	}
	if ex.Decode.Len() != 1 {
		t.Fatalf("decode cache has %d entries, want 1 (the stale entry should have been dropped, not kept alongside the fresh one)", ex.Decode.Len())
	}
}

// --- hot-pattern equivalence -----------------------------------------

func TestDwordMemsetPatternEquivalence(t *testing.T) {
	for _, count := range []uint32{0, 3, 4, 30, 32} {
		t.Run(string(rune('0'+count%10)), func(t *testing.T) {
			const progIP = 0
			eax := uint32(0x12345678)
			dst := uint64(0x5000)

			// Interpreter path: run REP STOSD to completion one
			// iteration at a time through the plain executor.
			interp := newCPU(t)
			interpList := instr.NewStandardList()
			interpEx := newExecutor(interp, interpList)
			loadBytes(t, interp, progIP, []byte{0xF3, 0x66, 0xAB, 0xF4})
			interp.SetReg32(cpu.RDI, uint32(dst))
			interp.SetReg32(cpu.RAX, eax)
			interp.SetReg32(cpu.RCX, count)
			interp.RIP = progIP
			runUntilHalted(t, interpEx, interp)

			// Pattern path: compile and run the same encoding as a
			// single bulk operation.
			patched := newCPU(t)
			patched.SetReg32(cpu.RDI, uint32(dst))
			patched.SetReg32(cpu.RAX, eax)
			patched.SetReg32(cpu.RCX, count)
			patched.RIP = progIP
			compiled, ok := (pattern.DwordMemset{}).TryCompile(patched, progIP, []byte{0xF3, 0x66, 0xAB})
			if !ok {
				t.Fatal("DwordMemset did not recognize its own signature")
			}
			result, err := compiled(patched)
			if err != nil {
				t.Fatalf("compiled pattern failed: %v", err)
			}
			if result.Outcome != cpu.PatternSuccess {
				t.Fatalf("expected PatternSuccess, got %v", result.Outcome)
			}
			patched.RIP = result.FinalIP

			if diff := cmp.Diff(interp.GPR, patched.GPR); diff != "" {
				t.Fatalf("count %d: GPR mismatch (-interpreter +pattern):\n%s", count, diff)
			}
			// The interpreter run also executed the one-byte HLT that
			// follows the pattern, so it stops one byte further on.
			if interp.RIP != patched.RIP+1 {
				t.Fatalf("count %d: RIP mismatch: interpreter=%#x pattern=%#x (+1 for HLT)", count, interp.RIP, patched.RIP)
			}
			for i := uint32(0); i < count; i++ {
				want, werr := interp.ReadDword(dst + uint64(i*4))
				if werr != nil {
					t.Fatalf("count %d: reading interpreter dword %d: %v", count, i, werr)
				}
				got, gerr := patched.ReadDword(dst + uint64(i*4))
				if gerr != nil {
					t.Fatalf("count %d: reading pattern dword %d: %v", count, i, gerr)
				}
				if got != want {
					t.Errorf("count %d: dword %d: interpreter=%#x pattern=%#x", count, i, want, got)
				}
			}
		})
	}
}

// --- page faults -----------------------------------------------------

func TestPageFaultOnDemandZeroPage(t *testing.T) {
	c := newCPU(t)
	c.CR0 = 1 << 31 // PG
	c.CR3 = 0x10000 // page directory, all zero in a fresh store.
	c.SetA20Enabled(true)
	c.SetMode(cpu.ModeProt32)

	_, err := c.ReadByte(0x400000)
	if err == nil {
		t.Fatal("expected a page fault reading an unmapped page")
	}
	fe, ok := err.(*cpu.FaultException)
	if !ok {
		t.Fatalf("expected *cpu.FaultException, got %T: %v", err, err)
	}
	if fe.Vector != cpu.VectorPageFault {
		t.Errorf("vector = %d, want %d", fe.Vector, cpu.VectorPageFault)
	}
	if fe.Linear != 0x400000 {
		t.Errorf("FaultException.Linear = %#x, want the faulting linear address %#x", fe.Linear, uint64(0x400000))
	}
}
