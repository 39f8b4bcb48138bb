/*
   x86core - hot-pattern registry.

   Grounded on spec 4.4; contracts live here (not in emu/pattern) for
   the same consumer-defined-interface reason as Handler/List in
   contracts.go: concrete recognizers in emu/pattern import this
   package, never the reverse.

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

// PatternOutcome is the result a CompiledPattern reports after a run.
type PatternOutcome uint8

const (
	// PatternSuccess means the pattern ran to completion atomically
	// and FinalIP is where execution should resume.
	PatternSuccess PatternOutcome = iota
	// PatternSkip means a runtime precondition failed (overlapping
	// src/dst, paging enabled for a flat-addressing fast path, ...);
	// the caller must fall back to normal dispatch at the original IP.
	PatternSkip
)

// PatternResult is what a CompiledPattern returns.
type PatternResult struct {
	Outcome PatternOutcome
	FinalIP uint64
}

// CompiledPattern runs a previously recognized instruction sequence
// atomically against the register file and memory.
type CompiledPattern func(c *CPU) (PatternResult, error)

// Recognizer matches a short, semantically meaningful byte signature
// and compiles it into a CompiledPattern capturing start_ip and any
// bound immediate/operand parameters.
type Recognizer interface {
	// TryCompile inspects peek (bytes starting at startIP) and returns
	// a compiled pattern plus true on a signature match.
	TryCompile(c *CPU, startIP uint64, peek []byte) (CompiledPattern, bool)
}

// PatternRegistry gates pattern probing behind a per-IP occurrence
// threshold (spec 4.4, "a separate detection threshold gates pattern
// probing to avoid wasted work on cold code") and caches compiled
// patterns per IP once a recognizer matches.
type PatternRegistry struct {
	recognizers []Recognizer
	threshold   int

	hits     map[uint64]int
	compiled map[uint64]CompiledPattern
	hitCount int
	missCount int
}

// NewPatternRegistry builds a registry probing with the given
// recognizers once an IP has been seen threshold times.
func NewPatternRegistry(threshold int, recognizers ...Recognizer) *PatternRegistry {
	return &PatternRegistry{
		recognizers: recognizers,
		threshold:   threshold,
		hits:        make(map[uint64]int),
		compiled:    make(map[uint64]CompiledPattern),
	}
}

// Try attempts pattern dispatch at ip. matched is true if a compiled
// pattern ran (whether it succeeded or returned Skip); callers fall
// back to TB/single-step dispatch whenever matched is false or the
// result's Outcome is PatternSkip.
func (r *PatternRegistry) Try(c *CPU, ip uint64, peek []byte) (result PatternResult, matched bool, err error) {
	if cp, ok := r.compiled[ip]; ok {
		res, err := cp(c)
		if err == nil && res.Outcome == PatternSuccess {
			r.hitCount++
		}
		return res, true, err
	}

	r.hits[ip]++
	if r.hits[ip] < r.threshold {
		return PatternResult{}, false, nil
	}

	for _, rec := range r.recognizers {
		cp, ok := rec.TryCompile(c, ip, peek)
		if !ok {
			continue
		}
		r.compiled[ip] = cp
		res, err := cp(c)
		if err == nil && res.Outcome == PatternSuccess {
			r.hitCount++
		}
		return res, true, err
	}
	r.missCount++
	return PatternResult{}, false, nil
}

// Invalidate discards compiled patterns and per-IP hit counters (spec
// 4.7, SMC protection; "recognizers are cached per-IP after
// compilation").
func (r *PatternRegistry) Invalidate() {
	r.hits = make(map[uint64]int)
	r.compiled = make(map[uint64]CompiledPattern)
}

// Hits and Misses report the statistics counters (spec 6, "pattern
// hits/misses").
func (r *PatternRegistry) Hits() int  { return r.hitCount }
func (r *PatternRegistry) Misses() int { return r.missCount }
