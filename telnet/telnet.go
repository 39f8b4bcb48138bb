/*
 * x86core - telnet server, connection protocol.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package telnet exposes the debug console over a raw telnet connection.
//
// Kept from the S370 telnet package: the IAC/WILL/WONT/DO/DONT option
// negotiation constants and tnState line-scanning state machine (telnet is
// telnet regardless of what is on the other end). Dropped: multiplexer.go's
// per-device terminal registry (RegisterTerminal/findTerminal/portMap),
// since that existed to route a telnet connection to one of many addressable
// 3270 terminal devices attached to the channel subsystem - this core has
// exactly one thing to connect to, the debug console, so a connection is
// handed straight to parser.ProcessCommand once negotiation settles rather
// than hunting for a free terminal slot.
package telnet

import (
	"bufio"
	"fmt"
	"net"

	"github.com/rcornwell/x86core/command/parser"
	"github.com/rcornwell/x86core/emu/core"
)

const (
	tnIAC  byte = 255
	tnDONT byte = 254
	tnDO   byte = 253
	tnWONT byte = 252
	tnWILL byte = 251
	tnSB   byte = 250
	tnSE   byte = 240

	tnOptionBinary byte = 0
	tnOptionEcho   byte = 1
	tnOptionSGA    byte = 3
)

var initString = []byte{
	tnIAC, tnWILL, tnOptionEcho,
	tnIAC, tnWILL, tnOptionSGA,
	tnIAC, tnWILL, tnOptionBinary,
	tnIAC, tnDO, tnOptionBinary,
}

type tnState int

const (
	tnStateData tnState = iota
	tnStateIAC
	tnStateNegotiate
	tnStateSB
)

// lineFilter removes telnet protocol bytes from raw input, tracking
// negotiation state across calls, and returns the plain data bytes seen.
type lineFilter struct {
	state tnState
}

func (f *lineFilter) filter(buf []byte) []byte {
	out := make([]byte, 0, len(buf))
	for _, b := range buf {
		switch f.state {
		case tnStateData:
			if b == tnIAC {
				f.state = tnStateIAC
			} else if b != '\r' {
				out = append(out, b)
			}
		case tnStateIAC:
			switch b {
			case tnIAC:
				out = append(out, b)
				f.state = tnStateData
			case tnWILL, tnWONT, tnDO, tnDONT:
				f.state = tnStateNegotiate
			case tnSB:
				f.state = tnStateSB
			default:
				f.state = tnStateData
			}
		case tnStateNegotiate:
			f.state = tnStateData
		case tnStateSB:
			if b == tnSE {
				f.state = tnStateData
			}
		}
	}
	return out
}

// handleClient runs the debug console command loop against a single
// telnet connection until it closes or the console quits.
func handleClient(conn net.Conn, c *core.Core) {
	defer conn.Close()

	if _, err := conn.Write(initString); err != nil {
		return
	}

	filter := lineFilter{}
	reader := bufio.NewReader(conn)
	raw := make([]byte, 1)
	var line []byte

	prompt := func() {
		fmt.Fprint(conn, "x86core> ")
	}
	prompt()

	for {
		n, err := reader.Read(raw)
		if err != nil || n == 0 {
			return
		}
		clean := filter.filter(raw[:n])
		for _, b := range clean {
			if b == '\n' {
				quit, cmdErr := parser.ProcessCommand(string(line), c, conn)
				if cmdErr != nil {
					fmt.Fprintln(conn, "Error: "+cmdErr.Error())
				}
				line = line[:0]
				if quit {
					return
				}
				prompt()
				continue
			}
			line = append(line, b)
		}
	}
}
