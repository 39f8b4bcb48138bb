/*
 * x86core - debug console command parser.
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

// Package parser implements the x86core debug console command language.
//
// Kept from the S370 command parser: the cmdLine tokenizer
// (skipSpace/getWord/isEOL), the abbreviation-matching cmdList/matchCommand
// idiom (so "st" matches "step", while "stop" needs at least "sto"), and the
// ProcessCommand/CompleteCmd entry points the reader package calls. Dropped:
// the device attach/detach/set/show vocabulary and its matchDevice/
// getOption machinery, since this core has no removable-media device model
// to configure — the debug commands below operate on the CPU and memory
// directly through emu/master packets.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/rcornwell/x86core/emu/core"
	"github.com/rcornwell/x86core/emu/master"
	"github.com/rcornwell/x86core/util/hex"
)

type cmd struct {
	name     string
	min      int
	process  func(*cmdLine, *core.Core) (bool, error)
	complete func(*cmdLine) []string
}

// cmdLine tokenizes one command and carries the writer replies are sent
// to - the local stdin console and each telnet connection pass their
// own, so "examine"/"regs" output reaches whoever typed the command
// rather than always landing on the process's own stdout.
type cmdLine struct {
	line string
	pos  int
	out  io.Writer
}

var cmdList = []cmd{
	{name: "run", min: 1, process: run},
	{name: "continue", min: 1, process: run},
	{name: "stop", min: 3, process: stop},
	{name: "step", min: 2, process: step},
	{name: "examine", min: 1, process: examine},
	{name: "deposit", min: 1, process: deposit},
	{name: "break", min: 3, process: setBreak},
	{name: "unbreak", min: 3, process: clearBreak},
	{name: "reset", min: 3, process: reset},
	{name: "regs", min: 2, process: regs},
	{name: "dump", min: 1, process: dump},
	{name: "quit", min: 1, process: quit},
}

// ProcessCommand executes one command line against core, writing any
// command output (examine, regs, and the like) to out.
func ProcessCommand(commandLine string, c *core.Core, out io.Writer) (bool, error) {
	line := cmdLine{line: commandLine, out: out}
	name := line.getWord()

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("unique command not found: " + name)
	}
	return match[0].process(&line, c)
}

// CompleteCmd returns the set of command names or arguments that could
// complete commandLine, for line-editor tab completion.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	if !line.isEOL() && line.line[line.pos] == ' ' {
		line.skipSpace()
		match := matchList(name)
		if len(match) != 1 || match[0].complete == nil {
			return nil
		}
		return match[0].complete(&line)
	}

	matches := matchList(name)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names
}

func matchCommand(m cmd, name string) bool {
	if len(name) > len(m.name) {
		return false
	}
	l := 0
	for l = range len(name) {
		if m.name[l] != name[l] {
			return false
		}
	}
	return (l + 1) >= m.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

func (line *cmdLine) getWord() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) && line.line[line.pos] != '#' {
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// getHex parses the next token as an unsigned 64-bit hex number,
// tolerating an optional leading "0x".
func (line *cmdLine) getHex() (uint64, error) {
	tok := line.getWord()
	if tok == "" {
		return 0, errors.New("expected address")
	}
	tok = strings.TrimPrefix(tok, "0x")
	v, err := strconv.ParseUint(tok, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", tok, err)
	}
	return v, nil
}

func (line *cmdLine) getInt(def int) int {
	tok := line.getWord()
	if tok == "" {
		return def
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return def
	}
	return v
}

func sendPacket(c *core.Core, pkt master.Packet) master.Reply {
	pkt.Reply = make(chan master.Reply, 1)
	c.Master() <- pkt
	return <-pkt.Reply
}

func run(_ *cmdLine, c *core.Core) (bool, error) {
	slog.Info("command run")
	c.Master() <- master.Packet{Cmd: master.CmdRun}
	return false, nil
}

func stop(_ *cmdLine, c *core.Core) (bool, error) {
	slog.Info("command stop")
	c.Master() <- master.Packet{Cmd: master.CmdStop}
	return false, nil
}

func step(line *cmdLine, c *core.Core) (bool, error) {
	n := line.getInt(1)
	for range n {
		reply := sendPacket(c, master.Packet{Cmd: master.CmdStep})
		if reply.Err != nil {
			return false, reply.Err
		}
	}
	return false, nil
}

func examine(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	width := line.getInt(4)
	reply := sendPacket(c, master.Packet{Cmd: master.CmdExamine, Addr: addr, Width: width})
	if reply.Err != nil {
		return false, reply.Err
	}
	fmt.Fprintf(line.out, "%0*X: %0*X\n", width*2, addr, width*2, reply.Value)
	return false, nil
}

// dump prints a 16-bytes-per-line hex/ASCII dump of a memory range:
// "dump <addr> [length]" (length defaults to 64 bytes).
func dump(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	length := line.getInt(64)
	if length <= 0 {
		return false, errors.New("dump length must be positive")
	}

	row := make([]byte, 0, 16)
	for i := 0; i < length; i++ {
		reply := sendPacket(c, master.Packet{Cmd: master.CmdExamine, Addr: addr + uint64(i), Width: 1})
		if reply.Err != nil {
			return false, reply.Err
		}
		row = append(row, byte(reply.Value))
		if len(row) == 16 {
			fmt.Fprintln(line.out, hex.DumpLine(addr+uint64(i)-15, row))
			row = row[:0]
		}
	}
	if len(row) > 0 {
		fmt.Fprintln(line.out, hex.DumpLine(addr+uint64(length)-uint64(len(row)), row))
	}
	return false, nil
}

func deposit(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	valTok := line.getWord()
	if valTok == "" {
		return false, errors.New("deposit requires a value")
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(valTok, "0x"), 16, 64)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: %w", valTok, err)
	}
	width := line.getInt(4)
	reply := sendPacket(c, master.Packet{Cmd: master.CmdDeposit, Addr: addr, Value: value, Width: width})
	return false, reply.Err
}

func setBreak(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	c.Master() <- master.Packet{Cmd: master.CmdSetBreak, Addr: addr}
	return false, nil
}

func clearBreak(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	c.Master() <- master.Packet{Cmd: master.CmdClearBreak, Addr: addr}
	return false, nil
}

func reset(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		addr = 0
	}
	c.Master() <- master.Packet{Cmd: master.CmdReset, Addr: addr}
	return false, nil
}

func regs(line *cmdLine, c *core.Core) (bool, error) {
	rip, gpr, flags, mode := c.Registers()
	names := []string{"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}
	fmt.Fprintf(line.out, "RIP=%016X MODE=%s\n", rip, mode)
	for i, n := range names {
		fmt.Fprintf(line.out, "%-3s=%016X", n, gpr[i])
		if i%4 == 3 {
			fmt.Fprintln(line.out)
		} else {
			fmt.Fprint(line.out, " ")
		}
	}
	fmt.Fprintf(line.out, "\nFLAGS: CF=%v PF=%v AF=%v ZF=%v SF=%v TF=%v IF=%v DF=%v OF=%v\n",
		flags.CF, flags.PF, flags.AF, flags.ZF, flags.SF, flags.TF, flags.IF, flags.DF, flags.OF)
	return false, nil
}

func quit(_ *cmdLine, _ *core.Core) (bool, error) {
	slog.Info("command quit")
	return true, nil
}
