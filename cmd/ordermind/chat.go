package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/rahul/ordermind/internal/agent"
)

// lineReader is satisfied by term.Terminal and by the plain stdin reader.
type lineReader interface {
	ReadLine() (string, error)
}

type plainReader struct {
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string
}

func (p *plainReader) ReadLine() (string, error) {
	fmt.Fprint(p.out, p.prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (c *ChatCmd) Run(cli *CLI) error {
	a, err := openApp(cli.loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(); err != nil {
		return err
	}

	chatID := "cli:" + c.Session
	if c.Reset {
		if err := a.history.Clear(chatID); err != nil {
			return err
		}
	}

	var (
		in  lineReader
		out io.Writer = os.Stdout
	)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, state)
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "you> ")
		in, out = t, t
	} else {
		in = &plainReader{scanner: bufio.NewScanner(os.Stdin), out: out, prompt: "you> "}
	}

	fmt.Fprintf(out, "ordermind chat (%s). /reset clears history, /exit quits.\n", chatID)
	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := a.history.Clear(chatID); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
			}
			continue
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		_, err = a.brain.Stream(ctx, chatID, line, printEvents(out))
		stop()
		if err != nil {
			fmt.Fprintf(out, "\n[error] %v\n", err)
		}
	}
}

// printEvents renders streamed events for a terminal reader.
func printEvents(out io.Writer) agent.EmitFunc {
	started := false
	return func(e agent.Event) {
		data, _ := e.Data.(map[string]any)
		switch e.Type {
		case agent.EventToolCall:
			fmt.Fprintf(out, "  → %v\n", data["name"])
		case agent.EventToolResult:
			if res, ok := data["result"]; ok {
				if r, ok := res.(interface{ IsError() bool }); ok && r.IsError() {
					fmt.Fprintf(out, "  ✗ %v failed\n", data["name"])
				}
			}
		case agent.EventDelta:
			if !started {
				fmt.Fprint(out, "ordermind> ")
				started = true
			}
			fmt.Fprint(out, data["text"])
		case agent.EventDone:
			fmt.Fprintln(out)
		}
	}
}
