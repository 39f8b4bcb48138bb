/*
   x86core - page-fault adaptation.

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

import "github.com/rcornwell/x86core/emu/memory"

// faultFromPageFault adapts a memory.PageFault raised by the paged
// view into a FaultException, with fault_ip pinned to the start of
// the faulting instruction (spec 7, "fault_ip = current_ip - len").
// Opcode length is not subtracted here: callers pass the already-
// correct instruction start IP - decode.go passes the ip it is
// decoding at directly (RIP has not moved yet), and smc.go's
// Read/Write wrappers pass CPU.ExecStartIP(), the address the
// advance-before-exec protocol recorded before moving RIP to the
// fall-through address and calling the handler.
func faultFromPageFault(pf *memory.PageFault, instrIP uint64) *FaultException {
	return &FaultException{
		Vector:    pf.Vector,
		ErrorCode: pf.ErrorCode,
		HasCode:   true,
		FaultIP:   instrIP,
		Linear:    pf.Linear,
		Message:   pf.Error(),
	}
}
