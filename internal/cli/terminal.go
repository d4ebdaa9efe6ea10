package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"quiz-client/internal/domain"
)

var errInterrupted = errors.New("interrupted")

// terminal reads input lines in the background so prompts can also wait on
// the session.
type terminal struct {
	out   io.Writer
	lines <-chan string
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &terminal{out: out, lines: lines}
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// ask prints prompt and waits for one line.
func (t *terminal) ask(ctx context.Context, prompt string) (string, error) {
	return t.askUntil(ctx, prompt, nil)
}

// askUntil is ask that gives up with errInterrupted once stop reports true.
func (t *terminal) askUntil(ctx context.Context, prompt string, stop func() bool) (string, error) {
	t.printf("%s", prompt)
	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return "", io.EOF
			}
			return strings.TrimSpace(line), nil
		case <-poll.C:
			if stop != nil && stop() {
				t.printf("\n")
				return "", errInterrupted
			}
		}
	}
}

func printLeaderboard(w io.Writer, entries []domain.LeaderboardEntry, top int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No scores yet.")
		return
	}
	if top > 0 && top < len(entries) {
		entries = entries[:top]
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSERNAME\tSCORE\tTIME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%ds\n", e.Rank, e.Username, e.Score, e.TimeTaken)
	}
	tw.Flush()
}

func printReview(w io.Writer, items []domain.ReviewItem) {
	correct := 0
	for i, item := range items {
		mark := "x"
		if item.IsCorrect {
			mark = "ok"
			correct++
		}
		chosen := item.Chosen
		if chosen == "" {
			chosen = "(no answer)"
		}
		fmt.Fprintf(w, "%d. %s\n   your answer: %s [%s]\n", i+1, item.Question.Text, chosen, mark)
		if !item.IsCorrect {
			fmt.Fprintf(w, "   correct answer: %s\n", item.Correct)
		}
	}
	fmt.Fprintf(w, "\n%d/%d correct\n", correct, len(items))
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
