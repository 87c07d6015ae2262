package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLabelsCmd() *cobra.Command {
	var (
		opts    backendOptions
		account string
	)

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List the user labels messages can be archived under",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(); err != nil {
				return err
			}
			s, closeSession, err := opts.openSession(cmd.Context(), account, opts.logger(os.Stderr))
			if err != nil {
				return err
			}
			defer closeSession()

			labels, err := s.Labels(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range labels {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&account, "account", "default", "Account name to use")
	return cmd
}
