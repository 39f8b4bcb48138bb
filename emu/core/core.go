/*
   x86core - core orchestration loop: runs the executor on a dedicated
   goroutine and accepts debug-console commands between steps.

   Adapted from the S370 core package (Copyright (c) 2024, Richard
   Cornwell): the teacher's core{wg, done, running, master chan
   master.Packet} shape, NewCPU/Start/Stop/processPacket methods, is
   kept verbatim in spirit — a WaitGroup-guarded goroutine draining a
   command channel between units of work — generalized from the S/370
   channel-packet vocabulary to this core's run/stop/step/examine/
   deposit/breakpoint command set.

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

package core

import (
	"log/slog"
	"sync"

	"github.com/rcornwell/x86core/emu/cpu"
	"github.com/rcornwell/x86core/emu/master"
)

// Core drives a cpu.Executor on its own goroutine, accepting debug
// commands from the console/telnet front ends via a master.Packet
// channel.
type Core struct {
	wg      sync.WaitGroup
	done    chan struct{}
	master  chan master.Packet
	running bool
	stopped bool

	mu   sync.Mutex
	exec *cpu.Executor
	log  *slog.Logger

	breakpoints map[uint64]bool
}

// New builds a core around exec.
func New(exec *cpu.Executor, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		exec:        exec,
		log:         logger,
		master:      make(chan master.Packet, 16),
		done:        make(chan struct{}),
		breakpoints: make(map[uint64]bool),
	}
}

// Master returns the channel front ends send master.Packet commands
// on.
func (c *Core) Master() chan<- master.Packet { return c.master }

// Start launches the dispatch loop. Safe to call once.
func (c *Core) Start() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
}

// Stop signals the dispatch loop to exit and waits for it.
func (c *Core) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Core) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case pkt := <-c.master:
			c.processPacket(pkt)
			continue
		default:
		}

		c.mu.Lock()
		running := c.running && !c.exec.Halted()
		c.mu.Unlock()
		if !running {
			select {
			case <-c.done:
				return
			case pkt := <-c.master:
				c.processPacket(pkt)
			}
			continue
		}

		if c.breakpoints[c.exec.CPU.RIP] {
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			c.log.Info("breakpoint hit", "ip", c.exec.CPU.RIP)
			continue
		}

		if err := c.exec.Step(); err != nil {
			c.log.Error("execution terminated", "error", err)
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
		}
	}
}

func (c *Core) processPacket(pkt master.Packet) {
	reply := master.Reply{}
	switch pkt.Cmd {
	case master.CmdRun:
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
	case master.CmdStop:
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	case master.CmdStep:
		reply.Err = c.exec.Step()
	case master.CmdExamine:
		reply.Value, reply.Err = c.examine(pkt.Addr, pkt.Width)
	case master.CmdDeposit:
		reply.Err = c.deposit(pkt.Addr, pkt.Width, pkt.Value)
	case master.CmdSetBreak:
		c.breakpoints[pkt.Addr] = true
	case master.CmdClearBreak:
		delete(c.breakpoints, pkt.Addr)
	case master.CmdReset:
		c.exec.InvalidateCaches()
		c.exec.CPU.RIP = pkt.Addr
	}
	if pkt.Reply != nil {
		pkt.Reply <- reply
	}
}

func (c *Core) examine(addr uint64, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := c.exec.CPU.ReadByte(addr)
		return uint64(v), err
	case 2:
		v, err := c.exec.CPU.ReadWord(addr)
		return uint64(v), err
	case 8:
		return c.exec.CPU.ReadQword(addr)
	default:
		v, err := c.exec.CPU.ReadDword(addr)
		return uint64(v), err
	}
}

// Registers returns a snapshot of the CPU's architectural state for the
// debug console's "regs" command.
func (c *Core) Registers() (rip uint64, gpr [16]uint64, flags cpu.Flags, mode cpu.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec.CPU.RIP, c.exec.CPU.GPR, c.exec.CPU.RFlags, c.exec.CPU.Mode()
}

func (c *Core) deposit(addr uint64, width int, value uint64) error {
	switch width {
	case 1:
		return c.exec.CPU.WriteByte(addr, byte(value))
	case 2:
		return c.exec.CPU.WriteWord(addr, uint16(value))
	case 8:
		return c.exec.CPU.WriteQword(addr, value)
	default:
		return c.exec.CPU.WriteDword(addr, uint32(value))
	}
}
