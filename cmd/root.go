package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the edaconn application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "edaconn",
	Short: "Local companion daemon for EDA browser access",
	Long: `edaconn manages authenticated sessions against EDA deployments.
It keeps Keycloak tokens fresh, persists connection profiles and proxies
application requests, falling back to a browser relay when the target's
TLS certificate is not trusted by this machine.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "edaconn version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
