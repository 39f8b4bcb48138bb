/*
 * x86core - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/x86core/command/reader"
	"github.com/rcornwell/x86core/config"
	"github.com/rcornwell/x86core/emu/core"
	"github.com/rcornwell/x86core/emu/cpu"
	"github.com/rcornwell/x86core/emu/device"
	"github.com/rcornwell/x86core/emu/event"
	"github.com/rcornwell/x86core/emu/instr"
	"github.com/rcornwell/x86core/emu/interrupt"
	"github.com/rcornwell/x86core/emu/memory"
	"github.com/rcornwell/x86core/emu/pattern"
	"github.com/rcornwell/x86core/telnet"
	"github.com/rcornwell/x86core/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "x86core.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file (overrides config file's log directive)")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	cfg := config.Default()
	if _, err := os.Stat(*optConfig); err == nil {
		cfg, err = config.Load(*optConfig)
		if err != nil {
			fmt.Println("Error loading config:", err)
			os.Exit(1)
		}
	}
	if *optLogFile != "" {
		cfg.LogFile = *optLogFile
	}

	var logFile *os.File
	if cfg.LogFile != "" {
		var err error
		logFile, err = os.Create(cfg.LogFile)
		if err != nil {
			fmt.Println("Error creating log file:", err)
			os.Exit(1)
		}
	}

	programLevel := new(slog.LevelVar)
	setLevel(programLevel, cfg.LogLevel)
	debug := cfg.LogLevel == "debug"
	Logger = slog.New(logger.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("x86core started", "memory", cfg.MemoryBytes, "a20", cfg.A20Enabled)

	store := memory.NewStore(cfg.MemoryBytes, cfg.SwapMaxBytes)
	translator := memory.NewTranslator(store)
	c := cpu.New()
	c.SetA20Enabled(cfg.A20Enabled)
	mem := memory.NewPagedView(store, translator, c)
	c.SetMemory(mem)
	c.RIP = cfg.BootAddr

	if cfg.BootImage != "" {
		if err := loadBootImage(c, cfg.BootImage, cfg.BootAddr); err != nil {
			Logger.Error("failed to load boot image", "error", err)
			os.Exit(1)
		}
	}

	list := instr.NewStandardList()
	patterns := cpu.NewPatternRegistry(cpu.PatternDetectionThreshold, pattern.DwordMemset{})
	interrupts := interrupt.New(Logger)
	ticks := event.New()
	bus := device.NewBus()
	c.SetPortBus(bus)
	screen := device.NewScreen(nil)

	exec := cpu.NewExecutor(c, list, patterns, interrupts, ticks, screen)

	eng := core.New(exec, Logger)
	eng.Start()

	if err := telnet.Start(eng, cfg.ConsolePort); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	go reader.ConsoleReader(eng)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	Logger.Info("shutting down")
	eng.Stop()
	telnet.Stop()
	Logger.Info("stopped")
}

func setLevel(v *slog.LevelVar, name string) {
	switch name {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

func loadBootImage(c *cpu.CPU, path string, addr uint64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for i, b := range data {
		if err := c.WriteByte(addr+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}
