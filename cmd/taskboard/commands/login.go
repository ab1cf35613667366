package commands

import (
	"context"
	"os"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange credentials for an access token",
	Long: `Log in to the API and print an access token.

The password is read from --password or TASKBOARD_PASSWORD.

Examples:
  # Log in as a demo user on a local devserver
  taskboard login --username ann --password password

  # Use the token in this shell
  export TASKBOARD_TOKEN=$(taskboard login -u ann -p password --quiet)`,
	RunE: runLogin,
}

var loginQuiet bool

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (required)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
	loginCmd.Flags().BoolVarP(&loginQuiet, "quiet", "q", false, "Print only the token")
	loginCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password := loginPassword
	if password == "" {
		password = os.Getenv("TASKBOARD_PASSWORD")
	}
	if password == "" {
		return printer.Error("password required", "No password given.", []string{"Pass --password or set TASKBOARD_PASSWORD"})
	}

	cfg.Token = ""
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	resp, err := client.Login(ctx, api.LoginRequest{Username: loginUsername, Password: password})
	if err != nil {
		return apiError("log in", cfg, err)
	}

	if loginQuiet {
		printer.Info("%s\n", resp.AccessToken)
		return nil
	}
	printer.Success("Logged in as %s (user %d)\n", resp.Username, resp.UserID)
	printer.Info("\nexport TASKBOARD_TOKEN=%s\n", resp.AccessToken)
	return nil
}
