/*
   x86core - Translation Block construction, execution, and chaining.

   Grounded on spec 4.3; there is no teacher analog (S/370 has no
   basic-block compilation), so the shape here follows the arena-
   indexed map the design notes recommend (spec 9, "Cyclic
   references"): the TB table owns TBs in a slice and maps IP/exit_ip
   to slice indices, so chain edges never create ownership cycles and
   Invalidate is a single slice/map reset.

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

// MaxTBInstructions bounds Translation Block construction (spec 4.3).
const MaxTBInstructions = 32

// MinTBInstructions is the smallest instruction count the executor
// will install as a TB (spec 4.5 step 6, "if it yields >= 2
// instructions, install and execute it").
const MinTBInstructions = 2

// TB is an immutable, pre-decoded instruction sequence starting at
// StartIP and ending at the first control-flow boundary (or the
// MaxTBInstructions bound).
type TB struct {
	StartIP     uint64
	Entries     []DecodeEntry
	TotalLength uint64

	// exits maps an exit IP to the TBTable index of the block chained
	// there. Populated lazily as the executor discovers chain targets.
	exits map[uint64]int
}

// BuildTB decodes up to MaxTBInstructions instructions starting at ip
// through cache, stopping at the first control-flow boundary. The
// caller is responsible for checking MinTBInstructions before
// installing the result (spec 4.5 step 6).
func BuildTB(c *CPU, list List, cache *DecodeCache, ip uint64) (*TB, *FaultException) {
	start := ip
	tb := &TB{StartIP: start, exits: make(map[uint64]int)}

	cur := ip
	for i := 0; i < MaxTBInstructions; i++ {
		entry, fault := cache.Decode(c, list, cur)
		if fault != nil {
			return nil, fault
		}
		tb.Entries = append(tb.Entries, entry)
		cur += uint64(entry.Length)
		if entry.Boundary {
			break
		}
	}
	tb.TotalLength = cur - start
	return tb, nil
}

// Execute walks the pre-decoded entries per spec 4.3's five-step loop,
// advancing IP to each entry's expected fall-through address before
// running it so relative/RIP-relative operands resolve correctly.
// guard runs before each entry the same way Executor.singleStep runs it,
// so the infinite-loop guard (spec 4.8) sees every executed opcode
// regardless of whether it reached this IP through a TB or a single step.
func (tb *TB) Execute(c *CPU, tracer Tracer, guard func(DecodeEntry, uint64) error) (exitIP uint64, status Status, err error) {
	ip := tb.StartIP
	for _, e := range tb.Entries {
		if guard != nil {
			if err := guard(e, ip); err != nil {
				return ip, StatusSuccess, err
			}
		}

		expected := ip + uint64(e.Length)
		c.SetExecStartIP(ip)
		c.RIP = expected

		_, st, execErr := e.Instr.Exec(c)
		if tracer != nil {
			tracer.OnInstruction(c, ip, e.Length, st)
		}
		if execErr != nil {
			return expected, st, execErr
		}
		if st == StatusContinue {
			return expected, st, nil
		}
		if !c.IterationActive() {
			c.ClearTransientOverrides()
		}
		if st == StatusHalt {
			return c.RIP, st, nil
		}
		if c.RIP != expected {
			return c.RIP, StatusSuccess, nil
		}
		ip = expected
	}
	return ip, StatusSuccess, nil
}

// TBTable owns every installed TB in an arena (slice), keyed by start
// IP, so chain edges are plain integer indices rather than pointers
// into each other (spec 9, "Cyclic references").
type TBTable struct {
	arena []*TB
	byIP  map[uint64]int
}

// NewTBTable builds an empty TB table.
func NewTBTable() *TBTable {
	return &TBTable{byIP: make(map[uint64]int)}
}

// Lookup returns the TB installed at ip, if any.
func (t *TBTable) Lookup(ip uint64) (*TB, bool) {
	idx, ok := t.byIP[ip]
	if !ok {
		return nil, false
	}
	return t.arena[idx], true
}

// Install registers tb under its StartIP, replacing any prior TB
// there.
func (t *TBTable) Install(tb *TB) {
	idx := len(t.arena)
	t.arena = append(t.arena, tb)
	t.byIP[tb.StartIP] = idx
}

// Chain records a chain edge from 'from' exiting at exitIP into 'to',
// only when the two blocks differ (spec 3, "no self-loop chains").
func (t *TBTable) Chain(from *TB, exitIP uint64, to *TB) {
	if from == to {
		return
	}
	idx, ok := t.byIP[to.StartIP]
	if !ok {
		return
	}
	if from.exits == nil {
		from.exits = make(map[uint64]int)
	}
	from.exits[exitIP] = idx
}

// ChainedAt returns the TB chained from 'from' at exitIP, if a chain
// edge was previously recorded and exitIP differs from from.StartIP
// (spec 3, "a chain edge is added only when exit_ip != start_ip").
func (t *TBTable) ChainedAt(from *TB, exitIP uint64) (*TB, bool) {
	if exitIP == from.StartIP {
		return nil, false
	}
	idx, ok := from.exits[exitIP]
	if !ok {
		return nil, false
	}
	return t.arena[idx], true
}

// Len reports the number of installed TBs (spec 6, "Statistics: TB
// count").
func (t *TBTable) Len() int { return len(t.arena) }

// TotalInstructions sums every installed TB's instruction count (spec
// 6, "total TB instructions").
func (t *TBTable) TotalInstructions() int {
	n := 0
	for _, tb := range t.arena {
		n += len(tb.Entries)
	}
	return n
}

// TotalChainEdges sums every installed TB's recorded chain edges (spec
// 6, "total chain edges").
func (t *TBTable) TotalChainEdges() int {
	n := 0
	for _, tb := range t.arena {
		n += len(tb.exits)
	}
	return n
}

// Invalidate discards every installed TB and chain edge.
func (t *TBTable) Invalidate() {
	t.arena = nil
	t.byIP = make(map[uint64]int)
}
