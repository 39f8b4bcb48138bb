/*
   x86core - instruction decode cache and control-flow boundary
   classification.

   Grounded on the S370 decode step embedded in cpuState.fetch (the
   teacher re-decodes the opcode byte on every fetch with no cache);
   this core adds the `IP -> (handler, opcode bytes, length)` cache the
   spec calls for, keyed on the flat decode-miss path being identical
   to a fresh decode (spec 8, "decode-cache idempotence").

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

// legacyPrefixBytes are the x86 legacy prefix bytes (glossary,
// "Legacy prefix"). The instruction list registers a CONTINUE-only
// Instruction for each of these so the decode cache never needs to
// special-case them.
var legacyPrefixBytes = map[byte]bool{
	0x26: true, 0x2E: true, 0x36: true, 0x3E: true,
	0x64: true, 0x65: true, 0x66: true, 0x67: true, 0xF0: true,
}

// IsLegacyPrefix reports whether b is a legacy prefix byte.
func IsLegacyPrefix(b byte) bool { return legacyPrefixBytes[b] }

// IsREXPrefix reports whether b is a 64-bit mode REX prefix byte.
func IsREXPrefix(b byte) bool { return b >= 0x40 && b <= 0x4F }

// DecodeEntry is one cached decode-cache row: the Instruction
// registered for the byte at IP, its architectural length, and the raw
// opcode bytes (kept for diagnostics and pattern signature matching).
type DecodeEntry struct {
	Instr       Instruction
	Length      int
	OpcodeBytes []byte
	Boundary    bool
}

// DecodeCache maps IP to the DecodeEntry last produced there. Entries
// are immutable once stored and are discarded wholesale by Invalidate
// (self-modifying-code protection, spec 4.7).
type DecodeCache struct {
	entries map[uint64]DecodeEntry
}

// NewDecodeCache builds an empty decode cache.
func NewDecodeCache() *DecodeCache {
	return &DecodeCache{entries: make(map[uint64]DecodeEntry)}
}

// Len reports the number of cached decode-cache rows (spec 6,
// "Statistics: decode cache size").
func (d *DecodeCache) Len() int { return len(d.entries) }

// Invalidate discards every cached decode entry.
func (d *DecodeCache) Invalidate() {
	d.entries = make(map[uint64]DecodeEntry)
}

// Lookup returns the entry cached at ip, if any, without touching
// memory.
func (d *DecodeCache) Lookup(ip uint64) (DecodeEntry, bool) {
	e, ok := d.entries[ip]
	return e, ok
}

// Decode resolves the instruction at ip: a cache hit returns the
// stored entry; a miss fetches the primary opcode byte, looks it up in
// list, peek-decodes its length via Instruction.Decode, classifies the
// control-flow-boundary byte pattern, and stores the result before
// returning it (spec 4.2, "decode results are idempotent per IP and
// are stored before the instruction executes").
func (d *DecodeCache) Decode(c *CPU, list List, ip uint64) (DecodeEntry, *FaultException) {
	if e, ok := d.entries[ip]; ok {
		return e, nil
	}

	mem := c.Mem()
	mem.InstructionFetch = true
	b, pf := mem.ReadByte(ip)
	mem.InstructionFetch = false
	if pf != nil {
		return DecodeEntry{}, faultFromPageFault(pf, ip)
	}

	instr, ok := list.Lookup(b)
	if !ok {
		return DecodeEntry{}, NewFault(VectorInvalidOpcode, ip+1, 1, "no instruction registered for opcode byte")
	}

	length, boundary, err := instr.Decode(c, ip)
	if err != nil {
		if fe, is := err.(*FaultException); is {
			return DecodeEntry{}, fe
		}
		return DecodeEntry{}, NewFault(VectorInvalidOpcode, ip+1, 1, err.Error())
	}
	if length <= 0 {
		length = 1
	}

	opcodeBytes := make([]byte, 0, length)
	for i := 0; i < length; i++ {
		mem.InstructionFetch = true
		ob, pf := mem.ReadByte(ip + uint64(i))
		mem.InstructionFetch = false
		if pf != nil {
			return DecodeEntry{}, faultFromPageFault(pf, ip)
		}
		opcodeBytes = append(opcodeBytes, ob)
	}

	// IsControlFlowBoundary is the authoritative byte-pattern classifier
	// (spec 4.6); an Instruction's own Decode may additionally flag a
	// boundary for cases the byte pattern alone can't see (e.g. a
	// variable-length instruction whose trailing bytes matter), so the
	// two are combined rather than either one overriding the other.
	boundary = boundary || IsControlFlowBoundary(opcodeBytes)

	entry := DecodeEntry{Instr: instr, Length: length, OpcodeBytes: opcodeBytes, Boundary: boundary}
	d.entries[ip] = entry
	return entry, nil
}

// IsControlFlowBoundary classifies a decoded opcode byte sequence per
// spec 4.6: after skipping leading legacy-prefix bytes, the first
// non-prefix byte determines whether this instruction ends a
// Translation Block.
func IsControlFlowBoundary(opcodeBytes []byte) bool {
	i := 0
	for i < len(opcodeBytes) && (IsLegacyPrefix(opcodeBytes[i]) || IsREXPrefix(opcodeBytes[i])) {
		i++
	}
	if i >= len(opcodeBytes) {
		return false
	}
	b := opcodeBytes[i]
	switch {
	case b == 0xF2 || b == 0xF3:
		return true
	case b >= 0x70 && b <= 0x7F:
		return true
	case b == 0xEB:
		return true
	case b >= 0xE0 && b <= 0xE3:
		return true
	case b == 0xE8 || b == 0xE9:
		return true
	case b == 0x9A || b == 0xEA:
		return true
	case b == 0xC2 || b == 0xC3 || b == 0xCA || b == 0xCB:
		return true
	case b >= 0xCC && b <= 0xCF:
		return true
	case b == 0x0F && i+1 < len(opcodeBytes) && opcodeBytes[i+1] >= 0x80 && opcodeBytes[i+1] <= 0x8F:
		return true
	case b == 0xFF:
		return true
	default:
		return false
	}
}
