/*
   x86core - Paged linear-address memory view.

   Adapted from the S370 memory package's word-accessor shape
   (GetWord/PutWord returning a bool error) but expressed over linear
   addresses and little-endian multi-byte accesses, with translation
   failures surfaced as the PageFault type instead of a bare bool.

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

// ModeSource is implemented by the CPU to give the paged view the mode
// bits it needs on every access, and the current CPL for user/
// supervisor classification.
type ModeSource interface {
	ModeContext() ModeContext
	CPL() uint8
}

// PagedView presents linear-address read/write to callers, routing
// through the Translator to reach physical memory.
type PagedView struct {
	store      *Store
	translator *Translator
	mode       ModeSource

	// InstructionFetch is toggled by the executor around fetch reads.
	InstructionFetch bool
}

// NewPagedView builds a paged view over store, translating addresses
// with translator according to mode.
func NewPagedView(store *Store, translator *Translator, mode ModeSource) *PagedView {
	return &PagedView{store: store, translator: translator, mode: mode}
}

func (v *PagedView) kind(write bool) AccessKind {
	return AccessKind{
		Write:      write,
		Fetch:      v.InstructionFetch,
		Supervisor: v.mode.CPL() == 0,
	}
}

// ReadByte reads one byte from linear address addr.
func (v *PagedView) ReadByte(addr uint64) (byte, *PageFault) {
	phys, fault := v.translator.Translate(addr, v.kind(false), v.mode.ModeContext())
	if fault != nil {
		return 0, fault
	}
	return v.store.ReadByte(phys), nil
}

// WriteByte writes one byte to linear address addr.
func (v *PagedView) WriteByte(addr uint64, b byte) *PageFault {
	phys, fault := v.translator.Translate(addr, v.kind(true), v.mode.ModeContext())
	if fault != nil {
		return fault
	}
	v.store.WriteByte(phys, b)
	return nil
}

// ReadWord/ReadDword/ReadQword read little-endian aggregates.
func (v *PagedView) ReadWord(addr uint64) (uint16, *PageFault) {
	lo, err := v.ReadByte(addr)
	if err != nil {
		return 0, err
	}
	hi, err := v.ReadByte(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (v *PagedView) ReadDword(addr uint64) (uint32, *PageFault) {
	var out uint32
	for i := 0; i < 4; i++ {
		b, err := v.ReadByte(addr + uint64(i))
		if err != nil {
			return 0, err
		}
		out |= uint32(b) << (8 * i)
	}
	return out, nil
}

func (v *PagedView) ReadQword(addr uint64) (uint64, *PageFault) {
	var out uint64
	for i := 0; i < 8; i++ {
		b, err := v.ReadByte(addr + uint64(i))
		if err != nil {
			return 0, err
		}
		out |= uint64(b) << (8 * i)
	}
	return out, nil
}

func (v *PagedView) WriteWord(addr uint64, val uint16) *PageFault {
	if err := v.WriteByte(addr, byte(val)); err != nil {
		return err
	}
	return v.WriteByte(addr+1, byte(val>>8))
}

func (v *PagedView) WriteDword(addr uint64, val uint32) *PageFault {
	for i := 0; i < 4; i++ {
		if err := v.WriteByte(addr+uint64(i), byte(val>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

func (v *PagedView) WriteQword(addr uint64, val uint64) *PageFault {
	for i := 0; i < 8; i++ {
		if err := v.WriteByte(addr+uint64(i), byte(val>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// CopyFromString bulk-writes data at destLinear, taking the fast path
// straight to physical memory when paging is disabled (spec 4.1).
func (v *PagedView) CopyFromString(data []byte, destLinear uint64) *PageFault {
	mc := v.mode.ModeContext()
	if !mc.PagingEnabled {
		phys, fault := v.translator.Translate(destLinear, v.kind(true), mc)
		if fault != nil {
			return fault
		}
		v.store.CopyIn(data, phys)
		return nil
	}
	for i, b := range data {
		if err := v.WriteByte(destLinear+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}
