/*
   x86core - boot configuration file parser.

   Grounded on the S370 configparser package (Copyright (c) 2024,
   Richard Cornwell) for its overall shape: a line-oriented grammar
   documented in a comment block, '#' comments, one directive per
   line, parsed with bufio.Scanner + strings.Fields rather than a
   dependency. The S/370 grammar's device/address/option vocabulary
   (channel devices, card/tape models) has no x86 analog and is not
   carried over; this core's directives cover what boots an x86 image
   instead: memory size, the A20 default, the firmware image to
   load, and the log destination.

   Configuration file format:

     '#' indicates comment, rest of line is ignored.
     <line> := 'memory' <size> |
               'swapmax' <size> |
               'a20' ('on'|'off') |
               'boot' <path> <load-address> |
               'log' <path> |
               'loglevel' ('debug'|'info'|'warn'|'error') |
               'console' <port>
     <size> ::= <number> ['K'|'M'|'G']

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

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config is the parsed boot configuration.
type Config struct {
	MemoryBytes uint64
	SwapMaxBytes uint64
	A20Enabled  bool
	BootImage   string
	BootAddr    uint64
	LogFile     string
	LogLevel    string
	ConsolePort int
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		MemoryBytes: 16 * 1024 * 1024,
		SwapMaxBytes: 16 * 1024 * 1024,
		A20Enabled:  false,
		BootAddr:    0x7C00,
		LogLevel:    "info",
		ConsolePort: 2380,
	}
}

// Load parses a configuration file at path, starting from Default().
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the line-oriented grammar from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := applyDirective(cfg, fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDirective(cfg *Config, fields []string) error {
	directive := strings.ToLower(fields[0])
	args := fields[1:]

	switch directive {
	case "memory":
		v, err := parseSize(arg(args, 0))
		if err != nil {
			return err
		}
		cfg.MemoryBytes = v
	case "swapmax":
		v, err := parseSize(arg(args, 0))
		if err != nil {
			return err
		}
		cfg.SwapMaxBytes = v
	case "a20":
		cfg.A20Enabled = strings.EqualFold(arg(args, 0), "on")
	case "boot":
		cfg.BootImage = arg(args, 0)
		if len(args) > 1 {
			v, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
			if err != nil {
				return fmt.Errorf("boot address: %w", err)
			}
			cfg.BootAddr = v
		}
	case "log":
		cfg.LogFile = arg(args, 0)
	case "loglevel":
		cfg.LogLevel = strings.ToLower(arg(args, 0))
	case "console":
		v, err := strconv.Atoi(arg(args, 0))
		if err != nil {
			return fmt.Errorf("console port: %w", err)
		}
		cfg.ConsolePort = v
	default:
		return fmt.Errorf("unknown directive %q", directive)
	}
	return nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing size")
	}
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult, s = 1024, s[:len(s)-1]
	case 'M', 'm':
		mult, s = 1024*1024, s[:len(s)-1]
	case 'G', 'g':
		mult, s = 1024*1024*1024, s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return v * mult, nil
}
