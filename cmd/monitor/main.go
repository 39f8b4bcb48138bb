/*
 * x86core - live register monitor, a bubbletea client of the debug
 * console's telnet port.
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

// Command monitor is a standalone live-register viewer: it dials the
// running core's debug console telnet port, polls it with "regs" on a
// fixed interval, and renders the reply in a bubbletea/lipgloss frame.
// It has no access to process memory - everything it shows comes back
// over the wire, exactly as a human operator typing "regs" would see it.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var frameStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Padding(0, 1)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

type tickMsg time.Time

type regsMsg struct {
	text string
	err  error
}

type model struct {
	addr    string
	conn    net.Conn
	reader  *bufio.Reader
	last    string
	lastErr error
}

func initialModel(addr string) model {
	return model{addr: addr}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(connectCmd(m.addr), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type connectedMsg struct {
	conn net.Conn
	err  error
}

func connectCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		return connectedMsg{conn: conn, err: err}
	}
}

func pollCmd(conn net.Conn, reader *bufio.Reader) tea.Cmd {
	return func() tea.Msg {
		if conn == nil {
			return regsMsg{err: fmt.Errorf("not connected")}
		}
		if _, err := fmt.Fprintln(conn, "regs"); err != nil {
			return regsMsg{err: err}
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var out []byte
		for i := 0; i < 8; i++ {
			line, err := reader.ReadString('\n')
			out = append(out, line...)
			if err != nil {
				break
			}
		}
		return regsMsg{text: string(out)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case connectedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.conn = msg.conn
		m.reader = bufio.NewReader(msg.conn)
		return m, pollCmd(m.conn, m.reader)
	case tickMsg:
		if m.conn == nil {
			return m, tea.Batch(connectCmd(m.addr), tickCmd())
		}
		return m, tea.Batch(pollCmd(m.conn, m.reader), tickCmd())
	case regsMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			m.conn = nil
			return m, nil
		}
		m.last = msg.text
		m.lastErr = nil
	}
	return m, nil
}

func (m model) View() string {
	body := titleStyle.Render("x86core monitor") + "\n\n"
	if m.lastErr != nil {
		body += errStyle.Render(m.lastErr.Error()) + "\n"
	}
	if m.last != "" {
		body += m.last
	} else {
		body += "waiting for data...\n"
	}
	body += "\n(q to quit)"
	return frameStyle.Render(body)
}

func main() {
	addr := flag.String("addr", "localhost:2380", "debug console telnet address")
	flag.Parse()

	if _, err := tea.NewProgram(initialModel(*addr)).Run(); err != nil {
		fmt.Println("monitor error:", err)
		os.Exit(1)
	}
}
