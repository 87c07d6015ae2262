package cmd

import (
	"bufio"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		account     string
		credentials string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access for an account",
		Long: `Run the Google OAuth flow for the gmail backend. Open the printed URL,
grant access and paste the code (or the full redirect URL) back here. The
token is stored in the user cache directory and refreshed automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := google.OAuthConfig(credentials)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if google.HasTokenForAccount(account) {
				fmt.Fprintf(out, "A token for account %q already exists and will be replaced.\n", account)
			}
			fmt.Fprintf(out, "Open this URL in your browser:\n\n  %s\n\nPaste the authorization code: ", google.GetAuthURL(cfg, uuid.NewString()))

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code, err := google.ExtractCode(line)
			if err != nil {
				return err
			}
			if err := google.SaveTokenForAccount(cmd.Context(), cfg, account, code); err != nil {
				return err
			}
			fmt.Fprintf(out, "Account %q is authorized.\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Account name to authorize")
	cmd.Flags().StringVar(&credentials, "credentials", "", "Google OAuth client_secret.json. Defaults to "+google.EnvClientID+"/"+google.EnvClientSecret+" env vars.")
	return cmd
}
