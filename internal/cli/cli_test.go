package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quiz-client/internal/gateway/gatewaytest"
)

type harness struct {
	srv  *gatewaytest.Server
	conf string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := gatewaytest.New()
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	t.Setenv("QUIZ_API_BASE_URL", srv.URL)
	t.Setenv("QUIZ_STORAGE_DRIVER", "file")
	t.Setenv("QUIZ_STORAGE_PATH", filepath.Join(dir, "storage.json"))
	t.Setenv("QUIZ_LOG_LEVEL", "error")
	return &harness{srv: srv, conf: filepath.Join(dir, "absent.yaml")}
}

func (h *harness) run(t *testing.T, input string, args ...string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", h.conf}, args...))
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

// statusValue returns the value printed next to key by the status command.
func statusValue(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, key+" ") {
			return strings.TrimSpace(strings.TrimPrefix(line, key))
		}
	}
	return ""
}

func TestPlayFullAttempt(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "alice\n\n1\n2\ns\n", "play", "--no-push")

	for _, want := range []string{"Welcome, alice!", "Question 1/2", "Question 2/2", "Score: 2/2", "Final score submitted."} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if h.srv.Attempts("alice") != 1 {
		t.Fatalf("expected one recorded attempt, got %d", h.srv.Attempts("alice"))
	}

	status := h.run(t, "", "status")
	if statusValue(status, "username") != "alice" || statusValue(status, "final submitted") != "true" {
		t.Fatalf("status did not restore the session:\n%s", status)
	}

	again := h.run(t, "", "play", "--no-push")
	if !strings.Contains(again, "already submitted") {
		t.Fatalf("expected final submission lock, got:\n%s", again)
	}
}

func TestPlayRejectsTakenUsername(t *testing.T) {
	h := newHarness(t)
	h.run(t, "bob\nq\n", "play", "--no-push")

	// A second client with its own storage asks for the same name.
	t.Setenv("QUIZ_STORAGE_PATH", filepath.Join(t.TempDir(), "other.json"))
	out := h.run(t, "bob\n", "play", "--no-push")
	if !strings.Contains(out, "déjà pris") {
		t.Fatalf("expected taken username message, got:\n%s", out)
	}
}

func TestAdminClosesQuiz(t *testing.T) {
	h := newHarness(t)

	if out := h.run(t, "", "admin", "login", h.srv.AdminToken); !strings.Contains(out, "Quiz is open") {
		t.Fatalf("unexpected login output:\n%s", out)
	}
	if out := h.run(t, "", "admin", "settings", "--close"); !strings.Contains(out, "Quiz is closed") {
		t.Fatalf("unexpected settings output:\n%s", out)
	}
	if out := h.run(t, "", "play", "--no-push"); !strings.Contains(out, "closed") {
		t.Fatalf("expected closed quiz, got:\n%s", out)
	}
}

func TestReviewAfterAttempt(t *testing.T) {
	h := newHarness(t)
	h.run(t, "carol\n\n1\n1\nq\n", "play", "--no-push")

	out := h.run(t, "", "review")
	if !strings.Contains(out, "1/2 correct") || !strings.Contains(out, "correct answer: B") {
		t.Fatalf("unexpected review:\n%s", out)
	}
	if status := h.run(t, "", "status"); statusValue(status, "answers reviewed") != "true" {
		t.Fatalf("review flag not persisted:\n%s", status)
	}
}

func TestLeaderboardCommand(t *testing.T) {
	h := newHarness(t)
	h.run(t, "dave\n\n1\n2\ns\n", "play", "--no-push")

	out := h.run(t, "", "leaderboard", "--top", "5")
	if !strings.Contains(out, "RANK") || !strings.Contains(out, "dave") {
		t.Fatalf("unexpected leaderboard:\n%s", out)
	}
}
