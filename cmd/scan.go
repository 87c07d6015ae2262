package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/reconcile"
)

func newScanCmd() *cobra.Command {
	var (
		opts    backendOptions
		account string
		cached  bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the mailbox and list its subscriptions",
		Long: `Load the cached snapshot, run an authoritative re-scan and print the
subscriptions found, one per sender address, with their category and status.

With --cached only the cached snapshot is shown; a scan is started only when
the backend has no cache yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(); err != nil {
				return err
			}
			logger := opts.logger(os.Stderr)
			s, closeSession, err := opts.openSession(cmd.Context(), account, logger)
			if err != nil {
				return err
			}
			defer closeSession()

			var v reconcile.View
			if cached {
				v, err = s.Refresh(cmd.Context())
			} else {
				v, err = s.Scan(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to scan mailbox %s: %w", s.Account(), err)
			}
			printView(cmd.OutOrStdout(), v)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&account, "account", "default", "Account name to use")
	cmd.Flags().BoolVar(&cached, "cached", false, "Show the cached snapshot instead of scanning")
	return cmd
}

func printView(w io.Writer, v reconcile.View) {
	fmt.Fprintf(w, "Source: %s", v.Source)
	if !v.FetchedAt.IsZero() {
		fmt.Fprintf(w, " (fetched %s)", v.FetchedAt.Format("2006-01-02 15:04"))
	}
	if v.Processing {
		fmt.Fprint(w, ", scan still processing")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Messages: %d (unread %d, starred %d, archived %d)\n",
		v.Stats.Messages, v.Stats.Unread, v.Stats.Starred, v.Stats.Archived)
	fmt.Fprintf(w, "Subscriptions: %d (active %d, unsubscribed %d)\n\n",
		v.Stats.Subscriptions, v.Stats.Active, v.Stats.Unsubscribed)

	if len(v.Subscriptions) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SENDER\tCATEGORY\tSTATUS\tMESSAGES\tLAST SEEN")
	for _, sub := range v.Subscriptions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			sub.Address, sub.Category, sub.Status, sub.MessageCount, sub.LastSeen.Format("2006-01-02"))
	}
	tw.Flush()
}
