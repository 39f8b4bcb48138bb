/*
   x86core - Physical memory store.

   Adapted from the S370 low-level memory package (Copyright (c) 2024,
   Richard Cornwell); re-expressed for a flat, byte-addressable x86
   physical address space instead of word-addressable S/370 storage.

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

package memory

// Store is the flat byte-addressable physical memory: bounded RAM
// backed by a contiguous slice, plus a sparse overflow region for
// addresses beyond configured RAM (used by firmware that probes
// physical ranges above installed memory without faulting).
type Store struct {
	ram     []byte
	overlow map[uint64]byte
	swapMax uint64
}

// NewStore allocates ramBytes of dense physical RAM and allows
// addresses up to swapMax to be addressed sparsely beyond it.
func NewStore(ramBytes, swapMax uint64) *Store {
	if swapMax < ramBytes {
		swapMax = ramBytes
	}
	return &Store{
		ram:     make([]byte, ramBytes),
		overlow: make(map[uint64]byte),
		swapMax: swapMax,
	}
}

// Size returns the amount of dense RAM backing the store.
func (s *Store) Size() uint64 {
	return uint64(len(s.ram))
}

// Max returns the highest addressable physical offset (RAM + overflow).
func (s *Store) Max() uint64 {
	return s.swapMax
}

// ReadByte reads one byte with no bounds checking: addresses inside
// RAM come from the dense array and every other address, including
// ones above Max, from the sparse overflow map (unwritten bytes read
// as zero). The translator does not range-check physical addresses.
func (s *Store) ReadByte(addr uint64) byte {
	if addr < uint64(len(s.ram)) {
		return s.ram[addr]
	}
	return s.overlow[addr]
}

// WriteByte writes one byte, routing to dense RAM or the sparse
// overflow map depending on address.
func (s *Store) WriteByte(addr uint64, v byte) {
	if addr < uint64(len(s.ram)) {
		s.ram[addr] = v
		return
	}
	if v == 0 {
		delete(s.overlow, addr)
		return
	}
	s.overlow[addr] = v
}

// CopyIn bulk-writes data starting at dest. This is the fast path used
// by PagedView.CopyFromString when paging is disabled: a single slice
// copy instead of per-byte translation.
func (s *Store) CopyIn(data []byte, dest uint64) {
	if dest >= uint64(len(s.ram)) {
		for i, b := range data {
			s.WriteByte(dest+uint64(i), b)
		}
		return
	}
	n := copy(s.ram[dest:], data)
	for i := n; i < len(data); i++ {
		s.WriteByte(dest+uint64(i), data[i])
	}
}

// CopyOut reads length bytes starting at src into a freshly
// allocated slice.
func (s *Store) CopyOut(src, length uint64) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = s.ReadByte(src + uint64(i))
	}
	return out
}
