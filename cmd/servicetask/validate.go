package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"servicetask/internal/config"
	"servicetask/internal/host"
	"servicetask/internal/schedule"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and list the tasks it defines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgm := config.NewManager(flagConfigPath)
		cfgm.SetValidator(host.Validate)
		cfg, err := cfgm.Load(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range cfg.Tasks {
			s, err := t.Settings(t.Name)
			if err != nil {
				return err
			}
			trigger := "-"
			if t.Trigger != "" {
				sp, err := schedule.ParseSpec(t.Trigger)
				if err != nil {
					return err
				}
				trigger = sp.String()
			}
			state := "enabled"
			if t.Disabled {
				state = "disabled"
			}
			fmt.Fprintf(out, "%-20s kind=%-10s repeatable=%-5t delay=%-8s max=%-4d retry=%-5t error_delay=%-8s trigger=%s %s\n",
				s.Name, t.Kind, s.Repeatable, s.Delay, s.MaxExecutions, s.RetryOnError, s.ErrorDelay, trigger, state)
		}
		fmt.Fprintf(out, "%s: ok (%d tasks)\n", cfgm.Path(), len(cfg.Tasks))
		return nil
	},
}
