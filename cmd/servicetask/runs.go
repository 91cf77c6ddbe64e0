package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"servicetask/internal/config"
	"servicetask/internal/host"
	"servicetask/internal/storage"
	logx "servicetask/pkg/logx"
)

var (
	runsTask  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the most recent iteration records from storage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgm := config.NewManager(flagConfigPath)
		cfg, err := cfgm.Load(cmd.Context())
		if err != nil {
			return err
		}
		store, err := host.OpenStore(cfg, logx.Nop())
		if errors.Is(err, storage.ErrDisabled) {
			return errors.New("storage is disabled in " + cfgm.Path())
		}
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.RecentRuns(cmd.Context(), runsTask, runsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %-16s %-20s #%-4d %6dms  %s  %s\n",
				r.At.Local().Format(time.DateTime), r.Task, r.Topic, r.Iteration, r.TookMS, r.RunID, r.Error)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsTask, "task", "", "only show this task")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of records")
}
