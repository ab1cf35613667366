package commands

import (
	"context"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/filter"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	activitySince  string
	activityUntil  string
	activityType   string
	activityUser   string
	activityOutput string
)

var activityCmd = &cobra.Command{
	Use:   "activity <board-id>",
	Short: "Show a board's activity log",
	Long: `Show a board's activity log, newest first.

Examples:
  # Everything in the last hour
  taskboard activity 1 --since 1h

  # Card moves by bob
  taskboard activity 1 --type 'CARD_MOVED' --user bob

  # All list changes as JSON
  taskboard activity 1 --type 'LIST_*' -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runActivity,
}

func init() {
	activityCmd.Flags().StringVar(&activitySince, "since", "", "Only entries after this time (duration like 1h or RFC3339)")
	activityCmd.Flags().StringVar(&activityUntil, "until", "", "Only entries before this time (duration like 1h or RFC3339)")
	activityCmd.Flags().StringVar(&activityType, "type", "", "Glob over the activity type, e.g. 'CARD_*'")
	activityCmd.Flags().StringVar(&activityUser, "user", "", "Only entries by this username")
	activityCmd.Flags().StringVarP(&activityOutput, "output", "o", "table", "Output format (table or json)")
	rootCmd.AddCommand(activityCmd)
}

func runActivity(cmd *cobra.Command, args []string) error {
	if err := outputFormat(activityOutput); err != nil {
		return err
	}
	boardID, err := parseID("board", args[0])
	if err != nil {
		return err
	}
	since, until, err := timespec.ParseRange(activitySince, activityUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}
	criteria := &filter.Criteria{Since: since, Until: until, TypeGlob: activityType, Username: activityUser}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	entries, err := client.BoardActivity(context.Background(), boardID)
	if err != nil {
		return apiError("load activity", cfg, err)
	}

	if criteria.HasFilters() {
		kept := entries[:0]
		for _, a := range entries {
			if criteria.MatchesActivity(a) {
				kept = append(kept, a)
			}
		}
		entries = kept
	}

	if activityOutput == "json" {
		if entries == nil {
			entries = []*api.Activity{}
		}
		return printer.FormatJSON(printer.Out, entries)
	}
	return printer.FormatActivity(printer.Out, entries)
}
