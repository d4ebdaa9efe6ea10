package cli

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/gateway"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Register and take the quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runPlay(cmd.Context(), rt, !offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "no-push", false, "do not subscribe to live settings updates")
	return cmd
}

func runPlay(ctx context.Context, rt *runtime, live bool) error {
	gw := rt.gateway()
	session, persister, err := rt.restore(ctx, gw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		persister.Run(gctx, session)
		return nil
	})
	if live {
		push, err := rt.pushClient()
		if err != nil {
			return err
		}
		dispatcher := app.NewDispatcher(session, nil, rt.log)
		g.Go(func() error {
			if err := push.Run(gctx, dispatcher.Handle); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		p := &player{session: session, gw: gw, term: newTerminal(rt.in, rt.out)}
		err := p.run(gctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// player drives one participant through the quiz screens.
type player struct {
	session *app.Session
	gw      *gateway.Client
	term    *terminal
}

func (p *player) run(ctx context.Context) error {
	st := p.session.FetchPublicSettings(ctx)
	if st.Settings != nil && !st.Settings.IsOpen && st.Phase != domain.PhaseActive {
		p.term.printf("The quiz is closed for now. Come back later.\n")
		return nil
	}

	for {
		st := p.session.State()
		if st.Submitting {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		var (
			done bool
			err  error
		)
		switch st.Phase {
		case domain.PhaseRegistering:
			err = p.register(ctx)
		case domain.PhaseIdle:
			done, err = p.start(ctx, st)
		case domain.PhaseActive:
			err = p.answer(ctx)
		case domain.PhaseFinished:
			done, err = p.results(ctx, st)
		case domain.PhaseDenied:
			p.denied(ctx, st)
			done = true
		default:
			// loading: another goroutine owns the fetch
			time.Sleep(100 * time.Millisecond)
		}
		if err != nil || done {
			return err
		}
	}
}

func (p *player) register(ctx context.Context) error {
	name, err := p.term.ask(ctx, "Choose a username: ")
	if err != nil {
		return err
	}
	if name == "" {
		p.term.printf("A username is required.\n")
		return nil
	}
	if err := p.gw.CheckUsername(ctx, name); err != nil {
		if msg, ok := gateway.IsRejected(err); ok {
			p.term.printf("%s\n", msg)
			return nil
		}
		p.term.printf("Could not check the username, try again.\n")
		return nil
	}
	p.session.Register(name)
	p.term.printf("Welcome, %s! You have %s per attempt and %d attempts.\n",
		name, formatClock(int(p.session.Duration()/time.Second)), domain.MaxAttempts)
	return nil
}

func (p *player) start(ctx context.Context, st app.State) (bool, error) {
	if st.HasSubmittedFinal {
		p.term.printf("Your final score is already submitted.\n")
		p.leaderboard(ctx)
		return true, nil
	}
	left := domain.MaxAttempts - st.AttemptsUsed
	line, err := p.term.ask(ctx, "Press Enter to start an attempt ("+strconv.Itoa(left)+" left), q to quit: ")
	if err != nil {
		return false, err
	}
	if strings.EqualFold(line, "q") {
		return true, nil
	}
	if s := p.session.State().Settings; s != nil && !s.IsOpen {
		p.term.printf("The quiz has just been closed.\n")
		return true, nil
	}
	if st = p.session.StartAttempt(ctx); st.Phase == domain.PhaseIdle {
		p.term.printf("Could not load the questions, try again.\n")
	}
	return false, nil
}

func (p *player) answer(ctx context.Context) error {
	st := p.session.Resume(ctx)
	if st.Phase != domain.PhaseActive {
		return nil
	}
	if st.SubmitFailed {
		p.term.printf("Your answers could not be sent. Continue past the last question to try again.\n")
	}
	q, ok := st.CurrentQuestion()
	if !ok {
		if _, err := p.term.ask(ctx, "Press Enter to submit your answers: "); err != nil {
			return err
		}
		p.session.SubmitAttempt(ctx)
		return nil
	}

	p.term.printf("\nQuestion %d/%d  [%s left]\n%s\n", st.CurrentIndex+1, len(st.Questions),
		formatClock(st.TimeRemainingSeconds), q.Text)
	for i, opt := range q.Options {
		marker := " "
		if st.Answers[q.ID] == opt {
			marker = "*"
		}
		p.term.printf(" %s%d) %s\n", marker, i+1, opt)
	}

	line, err := p.term.askUntil(ctx, "Answer number (Enter to continue): ", func() bool {
		now := p.session.State()
		return now.Phase != domain.PhaseActive || now.Submitting
	})
	if errors.Is(err, errInterrupted) {
		p.term.printf("Time is up!\n")
		return nil
	}
	if err != nil {
		return err
	}

	if line != "" {
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(q.Options) {
			p.term.printf("Pick a number between 1 and %d.\n", len(q.Options))
			return nil
		}
		p.session.SelectAnswer(q.ID, q.Options[n-1])
	}
	p.session.AdvanceQuestion(ctx)
	return nil
}

func (p *player) results(ctx context.Context, st app.State) (bool, error) {
	r := st.Result()
	p.term.printf("\nScore: %d/%d (%.0f%%)  Time: %d seconds\n%s\n", r.Score, r.Total, r.Percent, r.TimeTaken, r.Feedback)
	if st.HasSubmittedFinal {
		p.term.printf("Your final score is already submitted.\n")
		p.leaderboard(ctx)
		return true, nil
	}

	line, err := p.term.ask(ctx, "[r]etry, [s]ubmit final score, [v]iew answers, [q]uit: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "r":
		if !r.CanRetry {
			p.term.printf("You have used all your attempts.\n")
			p.leaderboard(ctx)
			return true, nil
		}
		p.session.ResetQuiz()
		p.session.StartAttempt(ctx)
	case "s":
		if st = p.session.SubmitFinalScore(ctx); !st.HasSubmittedFinal {
			p.term.printf("Could not submit your final score, try again.\n")
			return false, nil
		}
		p.term.printf("Final score submitted.\n")
		p.leaderboard(ctx)
		return true, nil
	case "v":
		items, err := p.session.FetchCorrection(ctx)
		if err != nil {
			p.term.printf("Could not load the correct answers.\n")
			return false, nil
		}
		printReview(p.term.out, items)
	case "q":
		return true, nil
	}
	return false, nil
}

func (p *player) denied(ctx context.Context, st app.State) {
	if st.HasSubmittedFinal {
		p.term.printf("Your final score is already submitted.\n")
	} else {
		p.term.printf("%s.\n", domain.MaxAttemptsMessage)
	}
	p.leaderboard(ctx)
}

func (p *player) leaderboard(ctx context.Context) {
	entries, err := p.gw.Leaderboard(ctx)
	if err != nil {
		p.term.printf("Leaderboard unavailable.\n")
		return
	}
	printLeaderboard(p.term.out, entries, 0)
}
