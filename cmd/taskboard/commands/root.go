package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/auth"
	"github.com/freudmarin/TaskBoardApp/internal/config"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/freudmarin/TaskBoardApp/pkg/bus/redisbus"
	"github.com/freudmarin/TaskBoardApp/pkg/bus/stompbus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "TaskBoard - live collaborative task boards from the terminal",
	Long: `TaskBoard talks to a task-board server over its REST API and follows
board changes in real time over the message bus (Redis Pub/Sub or STOMP).

Configuration is read from taskboard.yml when present and can be overridden
with TASKBOARD_* environment variables.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to taskboard.yml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig resolves configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configPath, os.Getenv)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s and TASKBOARD_* environment variables", configPath)},
		)
	}
	if debug {
		cfg.Debug = true
	}

	logrus.SetOutput(printer.ErrOut)
	logrus.SetLevel(logrus.WarnLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfg.Token != "" && (cfg.Identity.UserID == 0 || cfg.Identity.Username == "") {
		ident, err := auth.ParseIdentity(cfg.Token)
		if err != nil {
			return nil, printer.Error("invalid token", err.Error(), []string{"Log in again:\n  taskboard login --username <name>"})
		}
		if cfg.Identity.UserID == 0 {
			cfg.Identity.UserID = ident.UserID
		}
		if cfg.Identity.Username == "" {
			cfg.Identity.Username = ident.Username
		}
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*api.Client, error) {
	client, err := api.NewClient(cfg.API.BaseURL, cfg.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logrus.WithField("component", "api")))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

// connectBus dials the configured message bus.
func connectBus(ctx context.Context, cfg *config.Config) (*bus.Manager, error) {
	kind, err := cfg.Bus.Transport()
	if err != nil {
		return nil, err
	}

	var (
		dial       bus.DialFunc
		credential string
	)
	switch kind {
	case config.TransportRedis:
		opts, err := redis.ParseURL(cfg.Bus.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		dial = redisbus.NewDialer(opts,
			redisbus.WithPrefix(cfg.Bus.Prefix),
			redisbus.WithHeartbeat(cfg.Bus.Heartbeat),
			redisbus.WithLogger(logrus.WithField("component", "redisbus")))
	default:
		dial = stompbus.NewDialer(cfg.Bus.URL,
			stompbus.WithHeartbeat(cfg.Bus.Heartbeat),
			stompbus.WithLogger(logrus.WithField("component", "stompbus")))
		credential = cfg.Token
	}

	mgr := bus.NewManager(dial,
		bus.WithReconnectDelay(cfg.Bus.ReconnectDelay),
		bus.WithLogger(logrus.WithField("component", "bus")))
	if err := mgr.Connect(ctx, credential); err != nil {
		mgr.Close()
		return nil, printer.ErrorWithContext(
			"message bus unavailable",
			err.Error(),
			map[string]string{"Bus": cfg.Bus.URL},
			[]string{
				"Start a local server:\n  taskboard devserver",
				"Point TASKBOARD_BUS_URL at a reachable broker",
			},
		)
	}
	return mgr, nil
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, printer.Error(
			fmt.Sprintf("invalid %s id", kind),
			fmt.Sprintf("%q is not a positive integer", raw),
			nil,
		)
	}
	return id, nil
}

// apiError translates a failed API call into a formatted error.
func apiError(action string, cfg *config.Config, err error) error {
	switch {
	case api.IsNotFound(err):
		return printer.Error(fmt.Sprintf("failed to %s", action), err.Error(), []string{"List boards:\n  taskboard boards"})
	case api.StatusOf(err) == http.StatusUnauthorized || api.IsForbidden(err):
		return printer.Error(fmt.Sprintf("failed to %s", action), err.Error(), []string{"Log in again:\n  taskboard login --username <name>"})
	default:
		return printer.ErrorWithContext(fmt.Sprintf("failed to %s", action), err.Error(),
			map[string]string{"API": cfg.API.BaseURL}, nil)
	}
}

func outputFormat(raw string) error {
	switch raw {
	case "table", "json":
		return nil
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", raw),
			[]string{"Valid formats: table, json"},
		)
	}
}
