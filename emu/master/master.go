/*
   x86core - master control packets.

   The teacher's core loop and console/telnet front ends route commands
   through an emu/master.Packet channel, but the teacher's own master
   package was not available to copy from: it is rebuilt here from how
   core.go and the console reader consume it, sized for the debug
   operations this core's console actually needs (run/stop/step/examine/
   deposit/breakpoint/reset) rather than the teacher's IPL-device
   vocabulary.

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

package master

// Command names a debug-console operation routed to the core loop.
type Command int

const (
	CmdRun Command = iota
	CmdStop
	CmdStep
	CmdExamine
	CmdDeposit
	CmdSetBreak
	CmdClearBreak
	CmdReset
)

// Packet is one command sent from a console front end to the core
// loop, plus the reply channel the core uses to answer it.
type Packet struct {
	Cmd   Command
	Addr  uint64
	Value uint64
	Width int // 1/2/4/8 bytes, meaningful for Examine/Deposit

	Reply chan Reply
}

// Reply is the core loop's answer to a Packet.
type Reply struct {
	Value uint64
	Err   error
}
