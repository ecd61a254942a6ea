package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/futig/interview-client/internal/entity"
	"github.com/futig/interview-client/internal/machine"
	pkgLogger "github.com/futig/interview-client/internal/pkg/logger"
	"go.uber.org/zap"
)

// Runner is the interactive terminal front end. It is deliberately thin: all
// session logic lives in the state machine, the runner only renders the
// current snapshot and translates input lines into commands. While a
// transition is in flight no input is read, so duplicate submissions cannot
// happen from this layer either.
type Runner struct {
	machine *machine.Machine
	in      *bufio.Reader
	out     io.Writer
	logger  *zap.Logger
}

func NewRunner(m *machine.Machine, logger *zap.Logger) *Runner {
	return &Runner{
		machine: m,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		logger:  logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	if err := r.restore(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		snap := r.machine.Snapshot()

		switch snap.Phase {
		case machine.PhaseEmpty:
			if err := r.startSession(ctx); err != nil {
				return err
			}
		case machine.PhaseAwaitingQuestion:
			r.advance(ctx, snap)
		case machine.PhasePresentingQuestion:
			if err := r.answerQuestion(ctx, snap); err != nil {
				return err
			}
		case machine.PhaseComplete:
			return r.printRequirements(ctx)
		case machine.PhaseFailed:
			fmt.Fprintln(r.out, "The engine reported the conversation as failed. Run again to start over.")
			r.machine.Reset()
			return errors.New("conversation failed")
		default:
			// In-flight phases are never observed here: commands block.
			return fmt.Errorf("unexpected phase %s", snap.Phase)
		}
	}
}

func (r *Runner) restore(ctx context.Context) error {
	notifier := newWaitNotifier(r.out)
	notifier.Start()
	err := r.machine.Restore(pkgLogger.WithAction(ctx, "restore"))
	notifier.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if snap := r.machine.Snapshot(); snap.SessionID != "" {
		fmt.Fprintf(r.out, "Resuming interview for %q (session %s)\n", snap.Project, snap.SessionID)
	}

	return ctx.Err()
}

func (r *Runner) startSession(ctx context.Context) error {
	fmt.Fprint(r.out, "Project name: ")
	name, err := r.readLine()
	if err != nil {
		return err
	}

	notifier := newWaitNotifier(r.out)
	notifier.Start()
	startErr := r.machine.Start(pkgLogger.WithAction(ctx, "start_session"), name)
	notifier.Stop()

	if startErr == nil {
		fmt.Fprintf(r.out, "Interview started for %q.\n", strings.TrimSpace(name))
		return nil
	}

	switch {
	case errors.Is(startErr, entity.ErrQuotaExceeded):
		// Quota is terminal until the server window resets; offering a
		// retry prompt here would just burn requests.
		fmt.Fprintln(r.out, "Session quota exceeded. Try again after the quota window resets.")
		return startErr
	case errors.Is(startErr, context.Canceled):
		return startErr
	default:
		fmt.Fprintf(r.out, "Could not start the interview: %v\n", startErr)
		return nil // loop re-prompts; Start is retryable from empty
	}
}

func (r *Runner) advance(ctx context.Context, snap machine.Snapshot) {
	if snap.Progress.Total > 0 {
		fmt.Fprintf(r.out, "[%d/%d answered, %d%%]\n",
			snap.Progress.Answered, snap.Progress.Total, snap.Progress.Percent)
	}

	notifier := newWaitNotifier(r.out)
	notifier.Start()
	err := r.machine.Advance(pkgLogger.WithAction(ctx, "next_question"))
	notifier.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.out, "Could not fetch the next question: %v (press Enter to retry)\n", err)
		r.readLine()
	}
}

func (r *Runner) answerQuestion(ctx context.Context, snap machine.Snapshot) error {
	q := snap.Question

	fmt.Fprintf(r.out, "\n[%s] %s\n", q.Category, q.Text)
	if !q.Required {
		fmt.Fprintln(r.out, "(optional, type /skip to skip)")
	}
	if snap.DraftText != "" {
		fmt.Fprintf(r.out, "(recovered draft, press Enter to submit it)\n> %s\n", snap.DraftText)
	}

	fmt.Fprint(r.out, "> ")
	line, err := r.readLine()
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)

	switch line {
	case "/quit":
		return context.Canceled
	case "/reset":
		r.machine.Reset()
		fmt.Fprintln(r.out, "Session discarded.")
		return nil
	case "/skip":
		if skipErr := r.machine.Skip(pkgLogger.WithAction(ctx, "skip_question")); skipErr != nil {
			if errors.Is(skipErr, entity.ErrQuestionRequired) {
				fmt.Fprintln(r.out, "This question is required and cannot be skipped.")
				return nil
			}
			r.reportSubmitFailure(skipErr)
		}
		return nil
	case "":
		if snap.DraftText == "" {
			fmt.Fprintln(r.out, "Please enter an answer.")
			return nil
		}
		line = snap.DraftText
	}

	// Persist before the network round trip so an interrupt loses nothing.
	r.machine.SaveDraft(line)

	notifier := newWaitNotifier(r.out)
	notifier.Start()
	submitErr := r.machine.SubmitAnswer(pkgLogger.WithAction(ctx, "submit_answer"), line)
	notifier.Stop()

	if submitErr != nil && !errors.Is(submitErr, context.Canceled) {
		r.reportSubmitFailure(submitErr)
	}

	return nil
}

func (r *Runner) reportSubmitFailure(err error) {
	if errors.Is(err, entity.ErrValidation) {
		fmt.Fprintf(r.out, "Answer rejected: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Submission failed: %v\nYour answer was kept as a draft; just retry.\n", err)
}

func (r *Runner) printRequirements(ctx context.Context) error {
	snap := r.machine.Snapshot()

	if len(snap.Requirements) == 0 {
		fmt.Fprintln(r.out, "The interview is complete but requirements generation failed. Retrying...")
		if err := r.machine.RetryRequirements(pkgLogger.WithAction(ctx, "retry_requirements")); err != nil {
			fmt.Fprintf(r.out, "Still no requirements: %v (run again later to retry)\n", err)
			return err
		}
		snap = r.machine.Snapshot()
	}

	fmt.Fprintf(r.out, "\nPrioritized requirements for %q:\n", snap.Project)
	for _, req := range snap.Requirements {
		fmt.Fprintf(r.out, "  [%s] %s\n        %s\n", req.Priority, req.Title, req.Rationale)
	}

	return nil
}

func (r *Runner) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
