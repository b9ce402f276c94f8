// Package session runs an ordered approval loop over trade candidates. The loop
// itself holds no IO: decisions come from a Decider, which is a terminal prompt
// in production and a script in tests.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Decision is the user's answer for one candidate
type Decision int

const (
	Decline Decision = iota
	Approve
	AverageDown
	Abort
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case AverageDown:
		return "average-down"
	case Abort:
		return "abort"
	default:
		return "decline"
	}
}

// Option is one answer offered at a prompt
type Option struct {
	Key      string
	Label    string
	Decision Decision
}

// Options offered by the entry and exit menus
var (
	OptYes         = Option{Key: "y", Label: "[y]es", Decision: Approve}
	OptNo          = Option{Key: "n", Label: "[n]o", Decision: Decline}
	OptSkipRest    = Option{Key: "s", Label: "[s]kip rest", Decision: Abort}
	OptSell        = Option{Key: "s", Label: "[s]ell", Decision: Approve}
	OptHold        = Option{Key: "h", Label: "[h]old", Decision: Decline}
	OptAverageDown = Option{Key: "a", Label: "[a]verage down", Decision: AverageDown}
	OptQuit        = Option{Key: "q", Label: "[q]uit rest", Decision: Abort}
)

// EntryOptions are offered for buy and short candidates
var EntryOptions = []Option{OptYes, OptNo, OptSkipRest}

// Prompt is what the user sees for one candidate
type Prompt struct {
	Lines   []string
	Options []Option
}

// Choose maps raw input to a decision. Anything unrecognized declines.
func Choose(options []Option, input string) Decision {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, o := range options {
		if input == o.Key {
			return o.Decision
		}
	}
	return Decline
}

// Offers reports whether d is one of the options
func (p Prompt) Offers(d Decision) bool {
	for _, o := range p.Options {
		if o.Decision == d {
			return true
		}
	}
	return false
}

// Decider supplies decisions
type Decider interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
	Confirm(ctx context.Context, question string) (bool, error)
}

// Skip declines a candidate without prompting, e.g. no price or not enough cash.
type Skip struct {
	Reason string
}

func (s *Skip) Error() string { return s.Reason }

// Skipf builds a Skip error
func Skipf(format string, args ...any) error {
	return &Skip{Reason: fmt.Sprintf(format, args...)}
}

// Step prepares and executes one candidate. Prepare is called only when the
// candidate is reached, so it sees the effects of earlier approvals.
type Step interface {
	Prepare(ctx context.Context) (Prompt, error)
	Execute(ctx context.Context, d Decision) error
}

// Summary counts the outcome of a loop
type Summary struct {
	Presented int
	Executed  int
	Declined  int
	Skipped   int
	Failed    int
	Aborted   bool
}

// Loop walks steps in order
type Loop struct {
	decider Decider
	out     io.Writer
	log     zerolog.Logger
}

// NewLoop creates a Loop. User-facing messages go to out.
func NewLoop(decider Decider, out io.Writer, log zerolog.Logger) *Loop {
	return &Loop{decider: decider, out: out, log: log}
}

// Run processes steps in order until they are exhausted or the user aborts.
// A failing step is logged and the loop moves on.
func (l *Loop) Run(ctx context.Context, title string, steps []Step) (Summary, error) {
	var sum Summary
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		prompt, err := step.Prepare(ctx)
		if err != nil {
			var skip *Skip
			if errors.As(err, &skip) {
				fmt.Fprintf(l.out, "%s Skipping.\n", skip.Reason)
			} else {
				l.log.Error().Err(err).Msg("failed to prepare candidate")
				fmt.Fprintf(l.out, "Skipping candidate: %v\n", err)
			}
			sum.Skipped++
			continue
		}

		sum.Presented++
		fmt.Fprintf(l.out, "\n%d/%d - %s\n", i+1, len(steps), title)
		for _, line := range prompt.Lines {
			fmt.Fprintln(l.out, line)
		}

		d, err := l.decider.Decide(ctx, prompt)
		if err != nil {
			return sum, fmt.Errorf("failed to read decision: %w", err)
		}
		if !prompt.Offers(d) {
			d = Decline
		}

		switch d {
		case Abort:
			fmt.Fprintf(l.out, "Skipping rest of %s candidates.\n", title)
			sum.Aborted = true
			return sum, nil
		case Decline:
			sum.Declined++
			continue
		}

		if err := step.Execute(ctx, d); err != nil {
			var skip *Skip
			if errors.As(err, &skip) {
				fmt.Fprintf(l.out, "%s\n", skip.Reason)
				sum.Skipped++
				continue
			}
			l.log.Error().Err(err).Str("decision", d.String()).Msg("failed to execute decision")
			fmt.Fprintf(l.out, "Failed: %v\n", err)
			sum.Failed++
			continue
		}
		sum.Executed++
	}
	return sum, nil
}
