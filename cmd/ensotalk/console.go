package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/ensotalk/internal/journal"
	"github.com/MrWong99/ensotalk/internal/voice"
)

// errQuit is returned by [console.Run] when the user types "quit".
var errQuit = errors.New("quit requested")

const consoleHelp = `commands:
  <enter>          start or stop recording (push-to-talk) / pause listening
  mode ptt|always  switch the listen mode
  status           show the current session state
  history [n]      show the last n exchanges (default 5)
  help             show this help
  quit             exit`

// controller is the part of [voice.Controller] the console drives.
type controller interface {
	Toggle(ctx context.Context) (voice.State, error)
	SetListenMode(ctx context.Context, mode voice.ListenMode) error
	Snapshot() voice.Snapshot
	Subscribe() (<-chan voice.Snapshot, func())
}

// console is the terminal front end: a line-oriented command loop plus a
// printer for state changes.
type console struct {
	ctrl    controller
	journal journal.Store
	in      io.Reader
	out     io.Writer
}

// Run reads commands until ctx is cancelled or the user quits. End of input
// does not stop the session, so the process can run detached from a terminal.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	updates, cancel := c.ctrl.Subscribe()
	defer cancel()

	var last voice.Snapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			c.report(last, snap)
			last = snap
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := c.exec(ctx, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		st, err := c.ctrl.Toggle(ctx)
		if err != nil {
			fmt.Fprintf(c.out, "toggle failed: %v\n", err)
			return nil
		}
		fmt.Fprintf(c.out, "→ %s\n", st)
		return nil
	}

	switch fields[0] {
	case "mode":
		if len(fields) != 2 {
			fmt.Fprintln(c.out, "usage: mode ptt|always")
			return nil
		}
		mode, err := voice.ParseListenMode(fields[1])
		if err != nil {
			fmt.Fprintln(c.out, err)
			return nil
		}
		if err := c.ctrl.SetListenMode(ctx, mode); err != nil {
			fmt.Fprintf(c.out, "mode change failed: %v\n", err)
		}
	case "status":
		c.status(c.ctrl.Snapshot())
	case "history":
		n := 5
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				fmt.Fprintln(c.out, "usage: history [n]")
				return nil
			}
			n = v
		}
		c.history(ctx, n)
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintf(c.out, "unknown command %q (type help)\n", fields[0])
	}
	return nil
}

// report prints what changed between two snapshots. Level updates alone are
// not worth a line.
func (c *console) report(prev, next voice.Snapshot) {
	if next.Mode != prev.Mode {
		fmt.Fprintf(c.out, "mode: %s\n", next.Mode)
	}
	if next.State != prev.State {
		fmt.Fprintf(c.out, "[%s]\n", next.State)
	}
	if next.Transcript != prev.Transcript && next.Transcript != "" {
		fmt.Fprintf(c.out, "you: %s\n", next.Transcript)
	}
	if next.Reply != prev.Reply && next.Reply != "" {
		fmt.Fprintf(c.out, "assistant: %s\n", next.Reply)
	}
	if msg := next.ErrMessage(); msg != "" && msg != prev.ErrMessage() {
		fmt.Fprintf(c.out, "error: %s\n", msg)
	}
}

func (c *console) status(s voice.Snapshot) {
	fmt.Fprintf(c.out, "state: %s  mode: %s\n", s.State, s.Mode)
	if s.Transcript != "" {
		fmt.Fprintf(c.out, "last transcript: %s\n", s.Transcript)
	}
	if s.Reply != "" {
		fmt.Fprintf(c.out, "last reply: %s\n", s.Reply)
	}
	if msg := s.ErrMessage(); msg != "" {
		fmt.Fprintf(c.out, "last error: %s\n", msg)
	}
}

func (c *console) history(ctx context.Context, n int) {
	entries, err := c.journal.Recent(ctx, n)
	if err != nil {
		fmt.Fprintf(c.out, "history unavailable: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no exchanges yet")
		return
	}
	for _, e := range entries {
		outcome := "ok"
		if e.ErrorKind != "" {
			outcome = e.ErrorKind
		}
		fmt.Fprintf(c.out, "%s  %-14s %6s  %q → %q\n",
			e.StartedAt.Format(time.TimeOnly), outcome, e.Total.Round(time.Millisecond), e.Transcript, e.Reply)
	}
}
