package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Terminal reads decisions from an interactive line editor
type Terminal struct {
	rl *readline.Instance
}

// NewTerminal opens a readline instance on stdin/stdout
func NewTerminal() (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

// Stdout is the writer that cooperates with the prompt line
func (t *Terminal) Stdout() io.Writer {
	return t.rl.Stdout()
}

// Decide shows the options and reads one answer. Ctrl-C or EOF aborts the rest.
func (t *Terminal) Decide(ctx context.Context, p Prompt) (Decision, error) {
	labels := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		labels = append(labels, o.Label)
	}
	line, err := t.readLine(ctx, "Options: "+strings.Join(labels, " / ")+": ")
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return Abort, nil
	}
	if err != nil {
		return Decline, err
	}
	return Choose(p.Options, line), nil
}

// Confirm asks a yes/no question; only "y" or "yes" confirms.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	line, err := t.readLine(ctx, question+" (y/n): ")
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (t *Terminal) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.rl.SetPrompt(prompt)
	return t.rl.Readline()
}

// Close releases the terminal
func (t *Terminal) Close() error {
	return t.rl.Close()
}
