package main

import (
	"fmt"
	"os"

	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/pkg/version"

	"github.com/spf13/cobra"
)

const (
	defaultServerConfig = "inboxhub.yaml"
	defaultOutboxConfig = "outbox.yaml"
)

var (
	configPath string
	pidFile    string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of inboxhub",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inboxhub version %s\n", version.Get())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Validate the server configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfgPath, err := config.LoadConfig[config.HubServerConfig](confOr(defaultServerConfig))
			if err != nil {
				return fmt.Errorf("configuration %s is invalid: %w", cfgPath, err)
			}
			fmt.Printf("configuration file %s is valid\n", cfgPath)
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:          "inboxhub",
		Short:        "Realtime event hub for the messaging inbox",
		Long:         `inboxhub pushes inbox events to connected browsers over SSE or WebSocket and replays queued client actions`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid", "", "path to PID file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(outboxCmd)
}

// confOr returns the --conf flag or the given default file name
func confOr(def string) string {
	if configPath != "" {
		return configPath
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
