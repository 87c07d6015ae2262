package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDigestCmd() *cobra.Command {
	var (
		opts       backendOptions
		account    string
		regenerate bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print the AI digest of recent mail",
		Long: `Print the stored AI digest of the last 24 hours of mail.

With --regenerate the mailbox is scanned first and a new digest is generated
from the recent messages. Regeneration is limited to once per minute.`,
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

			out := cmd.OutOrStdout()
			if !regenerate {
				d, err := s.Digest(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get digest: %w", err)
				}
				if d.Text == "" {
					fmt.Fprintln(out, "No digest has been generated yet. Run with --regenerate to create one.")
					return nil
				}
				fmt.Fprintln(out, d.Text)
				return nil
			}

			if _, err := s.Scan(cmd.Context()); err != nil {
				return fmt.Errorf("failed to scan mailbox %s: %w", s.Account(), err)
			}
			sum, err := s.RegenerateDigest(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to regenerate digest: %w", err)
			}
			fmt.Fprintln(out, sum.Text)
			fmt.Fprintf(os.Stderr, "Generated from %d recent messages.\n", sum.Messages)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&account, "account", "default", "Account name to use")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Scan and regenerate the digest")
	return cmd
}
