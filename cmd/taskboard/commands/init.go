package commands

import (
	"os"
	"strings"

	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initForce  bool
	initAPIURL string
	initBusURL string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter taskboard.yml",
	Long: `Write taskboard.yml into the current directory.

Examples:
  # Local devserver defaults
  taskboard init

  # A hosted server over STOMP
  taskboard init --api https://boards.example.com --bus wss://boards.example.com/ws`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing taskboard.yml")
	initCmd.Flags().StringVar(&initAPIURL, "api", "", "API base URL")
	initCmd.Flags().StringVar(&initBusURL, "bus", "", "Message bus URL")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := scaffold.Initialize(dir, scaffold.Options{APIURL: initAPIURL, BusURL: initBusURL}, initForce)
	if err != nil {
		if strings.HasPrefix(err.Error(), "already initialized") {
			return printer.Error("already initialized", "taskboard.yml exists in this directory.",
				[]string{"Overwrite it:\n  taskboard init --force"})
		}
		return printer.Error("failed to initialize", err.Error(), nil)
	}
	printer.Success("Created %s\n", path)
	printer.Info("\nNext steps:\n  1. taskboard login --username <name>\n  2. taskboard watch <board-id>\n")
	return nil
}
