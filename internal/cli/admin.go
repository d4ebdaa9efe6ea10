package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/gateway"
)

// adminLeaderboardSize is how many ranks the live console shows.
const adminLeaderboardSize = 10

func newAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Quiz administration",
	}
	cmd.AddCommand(newAdminLoginCmd(opts))
	cmd.AddCommand(newAdminSettingsCmd(opts))
	cmd.AddCommand(newAdminWatchCmd(opts))
	cmd.AddCommand(newAdminCUIDsCmd(opts))
	return cmd
}

func newAdminLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <key>",
		Short: "Store the admin key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()
			session, persister, err := rt.restore(ctx, rt.gateway())
			if err != nil {
				return err
			}
			session.SetAdminCredential(args[0])
			st := session.FetchAdminSettings(ctx)
			persister.Save(ctx, st)
			if st.Settings == nil {
				fmt.Fprintln(rt.out, "Admin key saved, but the settings could not be read with it.")
				return nil
			}
			fmt.Fprintf(rt.out, "Admin key saved. Quiz is %s.\n", openLabel(*st.Settings))
			return nil
		},
	}
}

func newAdminSettingsCmd(opts *rootOptions) *cobra.Command {
	var open, closed bool
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change whether the quiz is open",
		RunE: func(cmd *cobra.Command, args []string) error {
			if open && closed {
				return errors.New("--open and --close are mutually exclusive")
			}
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()
			session, persister, err := rt.restore(ctx, rt.gateway())
			if err != nil {
				return err
			}
			if session.State().AdminCredential == "" {
				return errors.New("no admin key stored, run `quiz admin login <key>` first")
			}

			var st app.State
			if open || closed {
				isOpen := open
				st = session.UpdateSettings(ctx, domain.SettingsPatch{IsOpen: &isOpen})
			} else {
				st = session.FetchAdminSettings(ctx)
			}
			persister.Save(ctx, st)
			if st.Settings == nil {
				return errors.New("quiz settings unavailable")
			}
			fmt.Fprintf(rt.out, "Quiz is %s.\n", openLabel(*st.Settings))
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the quiz to participants")
	cmd.Flags().BoolVar(&closed, "close", false, "close the quiz")
	return cmd
}

func newAdminWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow participants, submissions and the leaderboard live",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runAdminWatch(cmd.Context(), rt)
		},
	}
}

func runAdminWatch(ctx context.Context, rt *runtime) error {
	session, persister, err := rt.restore(ctx, rt.gateway())
	if err != nil {
		return err
	}
	if session.State().AdminCredential == "" {
		return errors.New("no admin key stored, run `quiz admin login <key>` first")
	}
	push, err := rt.pushClient()
	if err != nil {
		return err
	}
	session.FetchAdminSettings(ctx)

	console := app.NewConsole()
	dispatcher := app.NewDispatcher(session, console, rt.log)
	views, cancel := console.Subscribe()
	defer cancel()

	// Settings changes do not touch the console, so they get their own redraw signal.
	redraw := make(chan struct{}, 1)
	handle := func(e gateway.Event) {
		dispatcher.Handle(e)
		if e.Type == gateway.EventSettingsUpdated {
			select {
			case redraw <- struct{}{}:
			default:
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		persister.Run(gctx, session)
		return nil
	})
	g.Go(func() error {
		return push.Run(gctx, handle)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case view := <-views:
				renderConsole(rt.out, session.State(), view)
			case <-redraw:
				renderConsole(rt.out, session.State(), console.View())
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func renderConsole(w io.Writer, st app.State, view app.ConsoleView) {
	fmt.Fprintf(w, "\n== %s ==\n", view.UpdatedAt.Format("15:04:05"))
	if st.Settings != nil {
		fmt.Fprintf(w, "Quiz is %s.\n", openLabel(*st.Settings))
	}
	fmt.Fprintf(w, "Participants: %d\n", view.ParticipantCount)
	if len(view.RecentSubmissions) > 0 {
		fmt.Fprintln(w, "Recent submissions:")
		for _, sub := range view.RecentSubmissions {
			fmt.Fprintf(w, "  %s scored %d\n", sub.Username, sub.Score)
		}
	}
	printLeaderboard(w, view.Top(adminLeaderboardSize), 0)
}

func newAdminCUIDsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cuids",
		Short: "List captured identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			cuids, err := rt.gateway().CapturedIDs(cmd.Context())
			if err != nil {
				return err
			}
			printCUIDs(rt.out, cuids)
			return nil
		},
	}
}

func printCUIDs(w io.Writer, cuids []domain.CapturedID) {
	if len(cuids) == 0 {
		fmt.Fprintln(w, "No identifiers captured yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUID\tCAPTURED AT")
	for _, c := range cuids {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.CUID, c.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func openLabel(s domain.Settings) string {
	if s.IsOpen {
		return "open"
	}
	return "closed"
}
