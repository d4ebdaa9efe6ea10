package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLeaderboardCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the current ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			entries, err := rt.gateway().Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			printLeaderboard(rt.out, entries, top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "show only the first N entries (0 shows all)")
	return cmd
}

func newReviewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Compare your last attempt with the correct answers",
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
			items, err := session.FetchCorrection(ctx)
			persister.Save(ctx, session.State())
			if err != nil {
				return fmt.Errorf("review: %w", err)
			}
			printReview(rt.out, items)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the locally saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			session, _, err := rt.restore(cmd.Context(), rt.gateway())
			if err != nil {
				return err
			}
			st := session.State()

			tw := tabwriter.NewWriter(rt.out, 0, 0, 2, ' ', 0)
			username := st.Identity
			if username == "" {
				username = "(not registered)"
			}
			fmt.Fprintf(tw, "username\t%s\n", username)
			fmt.Fprintf(tw, "phase\t%s\n", st.Phase)
			fmt.Fprintf(tw, "attempts used\t%d\n", st.AttemptsUsed)
			fmt.Fprintf(tw, "time remaining\t%s\n", formatClock(st.TimeRemainingSeconds))
			if len(st.Questions) > 0 {
				r := st.Result()
				fmt.Fprintf(tw, "last score\t%d/%d in %ds\n", r.Score, r.Total, r.TimeTaken)
			}
			fmt.Fprintf(tw, "can retry\t%t\n", st.CanRetry)
			fmt.Fprintf(tw, "final submitted\t%t\n", st.HasSubmittedFinal)
			fmt.Fprintf(tw, "answers reviewed\t%t\n", st.HasReviewedCorrection)
			if st.Settings != nil {
				fmt.Fprintf(tw, "quiz open\t%t\n", st.Settings.IsOpen)
			}
			return tw.Flush()
		},
	}
}
