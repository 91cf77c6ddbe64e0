package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var flagConfigPath string

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "./servicetask.yaml", "config file (yaml or json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "servicetask:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "servicetask",
	Short: "Run background tasks once or repeatedly with retry and delay settings",
	Long: `servicetask hosts the tasks listed in a config file. Each task runs its
work function once or repeatedly, retries failures after an error delay and
can be woken early by a cron or interval trigger.

The config file is watched and changes are applied without a restart.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("servicetask: version info not available")
			return
		}
		fmt.Printf("servicetask: %s\n", info.Main.Version)
		fmt.Printf("go:          %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:      %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:       %s\n", s.Value)
			}
		}
	},
}
