/*
   x86core - self-modifying-code protection surface.

   Every memory write an instruction handler performs goes through
   these wrappers instead of calling the PagedView directly, so the
   CPU can track which pages have ever been fetched from and trigger
   cache invalidation the moment a write lands on one of them (spec
   4.7). The invalidation itself is performed by a callback the
   executor installs, keeping emu/cpu free of any dependency on the
   executor or decode-cache/TB/pattern types it owns.

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

const pageSize = 4096

// MarkPageExecuted records that linear's containing page has been used
// for instruction fetch (spec 3, "Executed-Pages Set").
func (c *CPU) MarkPageExecuted(linear uint64) {
	if c.executedPages == nil {
		c.executedPages = make(map[uint64]bool)
	}
	c.executedPages[linear>>12] = true
}

// SetInvalidateHook installs the callback the executor uses to flush
// the decode cache, hotspot counters, TB table, and pattern caches
// (spec 4.7). A nil hook is a no-op.
func (c *CPU) SetInvalidateHook(hook func(pageOverlap bool)) { c.invalidateHook = hook }

func (c *CPU) noteWrite(linear uint64) {
	if c.executedPages != nil && c.executedPages[linear>>12] && c.invalidateHook != nil {
		c.invalidateHook(true)
	}
}

// WriteByte writes through the paged view and checks the
// self-modifying-code condition.
func (c *CPU) WriteByte(linear uint64, b byte) error {
	if pf := c.mem.WriteByte(linear, b); pf != nil {
		return faultFromPageFault(pf, c.ExecStartIP())
	}
	c.noteWrite(linear)
	return nil
}

func (c *CPU) WriteWord(linear uint64, v uint16) error {
	if pf := c.mem.WriteWord(linear, v); pf != nil {
		return faultFromPageFault(pf, c.ExecStartIP())
	}
	c.noteWrite(linear)
	return nil
}

func (c *CPU) WriteDword(linear uint64, v uint32) error {
	if pf := c.mem.WriteDword(linear, v); pf != nil {
		return faultFromPageFault(pf, c.ExecStartIP())
	}
	c.noteWrite(linear)
	return nil
}

func (c *CPU) WriteQword(linear uint64, v uint64) error {
	if pf := c.mem.WriteQword(linear, v); pf != nil {
		return faultFromPageFault(pf, c.ExecStartIP())
	}
	c.noteWrite(linear)
	return nil
}

// WriteString bulk-writes data at dest (the fast path string/pattern
// handlers use for REP MOVSB/STOSD and memset-style patterns),
// checking the whole covered range against the executed-pages set.
func (c *CPU) WriteString(data []byte, dest uint64) error {
	if pf := c.mem.CopyFromString(data, dest); pf != nil {
		return faultFromPageFault(pf, c.ExecStartIP())
	}
	if c.executedPages == nil || len(data) == 0 {
		return nil
	}
	firstPage := dest >> 12
	lastPage := (dest + uint64(len(data)) - 1) >> 12
	for p := firstPage; p <= lastPage; p++ {
		if c.executedPages[p] {
			if c.invalidateHook != nil {
				c.invalidateHook(true)
			}
			return nil
		}
	}
	return nil
}

// ReadByte/ReadWord/ReadDword/ReadQword are thin convenience wrappers
// so instruction handlers never need to reach past the CPU into the
// memory package directly.
func (c *CPU) ReadByte(linear uint64) (byte, error) {
	v, pf := c.mem.ReadByte(linear)
	if pf != nil {
		return 0, faultFromPageFault(pf, c.ExecStartIP())
	}
	return v, nil
}

func (c *CPU) ReadWord(linear uint64) (uint16, error) {
	v, pf := c.mem.ReadWord(linear)
	if pf != nil {
		return 0, faultFromPageFault(pf, c.ExecStartIP())
	}
	return v, nil
}

func (c *CPU) ReadDword(linear uint64) (uint32, error) {
	v, pf := c.mem.ReadDword(linear)
	if pf != nil {
		return 0, faultFromPageFault(pf, c.ExecStartIP())
	}
	return v, nil
}

func (c *CPU) ReadQword(linear uint64) (uint64, error) {
	v, pf := c.mem.ReadQword(linear)
	if pf != nil {
		return 0, faultFromPageFault(pf, c.ExecStartIP())
	}
	return v, nil
}
