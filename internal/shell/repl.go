package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnterminatedQuote is returned by SplitArgs for an unclosed quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// RunFunc executes one shell command line. It returns true when the shell
// should exit.
type RunFunc func(ctx context.Context, args []string) (exit bool)

// REPL reads command lines, runs them and answers acknowledgement requests.
type REPL struct {
	in      io.Reader
	out     io.Writer
	context *Context
	ack     *LineAck
	run     RunFunc
}

// NewREPL creates a REPL reading from in and writing prompts to out.
func NewREPL(in io.Reader, out io.Writer, sc *Context, ack *LineAck, run RunFunc) *REPL {
	return &REPL{
		in:      in,
		out:     out,
		context: sc,
		ack:     ack,
		run:     run,
	}
}

// Run loops until a command asks to exit, input ends, or ctx is done. Any
// pending acknowledgement is released on return.
func (r *REPL) Run(ctx context.Context) error {
	defer r.ack.Stop()

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, r.context.Prompt())

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(r.out)
			return err
		case line = <-lines:
		}

		r.ack.Resume()

		args, err := SplitArgs(line)
		if err != nil {
			fmt.Fprintf(r.out, "%v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if r.run(ctx, args) {
			return nil
		}
	}
}

// SplitArgs splits a command line on whitespace. Single or double quotes
// group words; a backslash escapes the next character outside single
// quotes.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, c := range line {
		switch {
		case escaped:
			current.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inWord = true
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(c)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
