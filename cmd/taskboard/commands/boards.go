package commands

import (
	"context"

	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/spf13/cobra"
)

var (
	boardsOutput string
	showOutput   string
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List boards",
	RunE:  runBoards,
}

var showCmd = &cobra.Command{
	Use:   "show <board-id>",
	Short: "Print a board with its lists and cards",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	boardsCmd.Flags().StringVarP(&boardsOutput, "output", "o", "table", "Output format (table or json)")
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "table", "Output format (table or json)")
	rootCmd.AddCommand(boardsCmd)
	rootCmd.AddCommand(showCmd)
}

func runBoards(cmd *cobra.Command, args []string) error {
	if err := outputFormat(boardsOutput); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	boards, err := client.ListBoards(context.Background())
	if err != nil {
		return apiError("list boards", cfg, err)
	}
	if boardsOutput == "json" {
		return printer.FormatJSON(printer.Out, boards)
	}
	_, err = printer.FormatBoards(printer.Out, boards)
	return err
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := outputFormat(showOutput); err != nil {
		return err
	}
	boardID, err := parseID("board", args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	b, err := client.GetBoard(context.Background(), boardID)
	if err != nil {
		return apiError("load board", cfg, err)
	}
	if showOutput == "json" {
		return printer.FormatJSON(printer.Out, b)
	}
	return printer.FormatBoard(printer.Out, b)
}
