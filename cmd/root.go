package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxdigest application
var rootCmd = &cobra.Command{
	Use:   "inboxdigest",
	Short: "Reconciles a subscription mailbox and keeps its AI digest current",
	Long: `inboxdigest shows a cached view of your mailbox subscriptions at once,
re-scans in the background and keeps local changes (archive, star, delete,
unsubscribe) visible until the server confirms them. The AI digest of recent
mail is regenerated when the recent message set changes.

It can run as:
  - A CLI tool (scan, digest, labels)
  - An MCP (Model Context Protocol) server for AI assistants (serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxdigest version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newLabelsCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
