/*
   x86core - Linear-to-physical translator.

   Grounded on the S370 cpuState.transAddr dynamic-address-translation
   walk (Copyright (c) 2024, Richard Cornwell): a page-table walk that
   feeds a small, cheaply-invalidated cache so repeated accesses to the
   same page skip the walk. The S/370 version walks a segment/page
   table pair into a 256-entry TLB keyed by page index and a segment
   fingerprint, flushed on control-register writes; this version walks
   standard 32-bit (non-PAE) x86 paging into the two single-entry read/
   write page caches the core spec calls for, fingerprinted the same
   way: by the active paging/addressing mode, not just the page number.

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

import "fmt"

const pageSize = 4096

// AccessKind describes why a linear address is being translated.
type AccessKind struct {
	Write     bool
	Fetch     bool
	Supervisor bool
}

// ModeContext is the subset of CPU mode state the translator needs.
// It is supplied by the CPU on every call rather than cached locally,
// so the CPU is always the single source of truth for mode bits.
type ModeContext struct {
	LongMode      bool
	ProtectedMode bool
	PagingEnabled bool
	A20Enabled    bool
	CR3           uint64
}

// fingerprint captures the mode state that affects translation: the
// linear mask, the paging flag, the user flag and the page-directory
// root in CR3. Two accesses only share a cached page if their
// fingerprints are identical.
type fingerprint struct {
	linearMask uint64
	paging     bool
	user       bool
	cr3        uint64
}

func (mc ModeContext) linearMask() uint64 {
	switch {
	case mc.LongMode:
		return 0xFFFFFFFFFFFF // 48-bit; canonical-form check is separate.
	case mc.A20Enabled:
		return 0xFFFFFFFF
	default:
		return 0xFFFFF
	}
}

func (mc ModeContext) fingerprint(sup bool) fingerprint {
	return fingerprint{linearMask: mc.linearMask(), paging: mc.PagingEnabled, user: !sup, cr3: mc.CR3}
}

// PageFault is thrown by the translator (and by PagedView) on a
// translation failure. Vector 14 is #PF; ErrorCode carries the
// present/write/user/reserved/instruction-fetch bits.
type PageFault struct {
	Vector    uint8
	ErrorCode uint16
	Linear    uint64
}

func (f *PageFault) Error() string {
	return fmt.Sprintf("page fault: linear=%#x vector=%d code=%#x", f.Linear, f.Vector, f.ErrorCode)
}

// Page-fault error code bits.
const (
	PFPresent uint16 = 1 << 0
	PFWrite   uint16 = 1 << 1
	PFUser    uint16 = 1 << 2
	PFReserved uint16 = 1 << 3
	PFFetch   uint16 = 1 << 4
)

type pageCacheEntry struct {
	valid    bool
	fp       fingerprint
	pageBase uint64 // linear page base this entry covers
	physBase uint64 // corresponding physical page base
}

// Translator resolves linear addresses to physical ones, walking
// standard x86 32-bit non-PAE page tables when paging is enabled and
// caching the last translated read page and last translated write
// page, exactly as spec.md 4.1 describes.
type Translator struct {
	store *Store

	readCache  pageCacheEntry
	writeCache pageCacheEntry
}

// NewTranslator builds a translator over the given physical store.
func NewTranslator(store *Store) *Translator {
	return &Translator{store: store}
}

// Invalidate clears both single-entry page caches. Nothing in the
// executor calls it on a control-register write: Translate misses on
// its own whenever the linear mask, paging flag, user flag or CR3 root
// differ from the cached entry's fingerprint, and a write that leaves
// all four unchanged keeps the cached pages.
func (t *Translator) Invalidate() {
	t.readCache = pageCacheEntry{}
	t.writeCache = pageCacheEntry{}
}

// Translate resolves a linear address for the given access kind under
// the supplied mode context, consulting (and refreshing) the page
// caches along the way.
func (t *Translator) Translate(linear uint64, kind AccessKind, mc ModeContext) (uint64, *PageFault) {
	linear &= mc.linearMask()
	fp := mc.fingerprint(kind.Supervisor)
	pageBase := linear &^ (pageSize - 1)
	offset := linear & (pageSize - 1)

	if !kind.Write {
		if t.readCache.valid && t.readCache.fp == fp && t.readCache.pageBase == pageBase {
			return t.readCache.physBase + offset, nil
		}
		if t.writeCache.valid && t.writeCache.fp == fp && t.writeCache.pageBase == pageBase {
			return t.writeCache.physBase + offset, nil
		}
	} else if t.writeCache.valid && t.writeCache.fp == fp && t.writeCache.pageBase == pageBase {
		return t.writeCache.physBase + offset, nil
	}

	physBase, fault := t.walk(pageBase, kind, mc)
	if fault != nil {
		fault.Linear = linear
		return 0, fault
	}

	entry := pageCacheEntry{valid: true, fp: fp, pageBase: pageBase, physBase: physBase}
	if kind.Write {
		t.writeCache = entry
	} else {
		t.readCache = entry
	}
	return physBase + offset, nil
}

// walk performs the actual page-table lookup (or identity maps when
// paging is disabled).
func (t *Translator) walk(pageBase uint64, kind AccessKind, mc ModeContext) (uint64, *PageFault) {
	if !mc.PagingEnabled {
		return pageBase, nil
	}

	pdIndex := (pageBase >> 22) & 0x3FF
	ptIndex := (pageBase >> 12) & 0x3FF

	pde := t.readPTE(mc.CR3 &^ (pageSize - 1) + pdIndex*4)
	if pde&ptePresent == 0 {
		return 0, t.faultFor(kind, pde, false)
	}
	ptBase := pde &^ (pageSize - 1)
	pte := t.readPTE(ptBase + ptIndex*4)
	if pte&ptePresent == 0 {
		return 0, t.faultFor(kind, pte, false)
	}
	if kind.Write && pte&pteWrite == 0 && !kind.Supervisor {
		return 0, &PageFault{Vector: 14, ErrorCode: PFPresent | PFWrite | pfUserBit(kind)}
	}
	if !kind.Supervisor && pte&pteUser == 0 {
		return 0, &PageFault{Vector: 14, ErrorCode: PFPresent | pfUserBit(kind) | writeBit(kind)}
	}
	return pte &^ (pageSize - 1), nil
}

func writeBit(kind AccessKind) uint16 {
	if kind.Write {
		return PFWrite
	}
	return 0
}

const (
	ptePresent uint64 = 1 << 0
	pteWrite   uint64 = 1 << 1
	pteUser    uint64 = 1 << 2
)

func pfUserBit(kind AccessKind) uint16 {
	if !kind.Supervisor {
		return PFUser
	}
	return 0
}

func (t *Translator) faultFor(kind AccessKind, _ uint64, present bool) *PageFault {
	code := pfUserBit(kind)
	if kind.Write {
		code |= PFWrite
	}
	if kind.Fetch {
		code |= PFFetch
	}
	if present {
		code |= PFPresent
	}
	return &PageFault{Vector: 14, ErrorCode: code}
}

func (t *Translator) readPTE(phys uint64) uint64 {
	var v uint64
	for i := 0; i < 4; i++ {
		v |= uint64(t.store.ReadByte(phys+uint64(i))) << (8 * i)
	}
	return v
}
