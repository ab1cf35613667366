package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/freudmarin/TaskBoardApp/internal/auth"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/internal/sandbox"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	devAddr      string
	devRedisAddr string
	devPrefix    string
	devSecret    string
	devFailMoves int
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local API and message bus with a demo board",
	Long: `Run a self-contained server for local use and demos.

Starts an in-process Redis server for the message bus and the REST API on top
of an in-memory store seeded with a demo board and two users (ann and bob,
password "password"). Access tokens for both users are printed at startup.

Examples:
  # Start on the default ports
  taskboard devserver

  # In two other shells
  TASKBOARD_TOKEN=<ann token> taskboard watch 1
  TASKBOARD_TOKEN=<bob token> taskboard move 1 100 --list 11`,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "addr", "127.0.0.1:8080", "API listen address")
	devserverCmd.Flags().StringVar(&devRedisAddr, "redis-addr", "127.0.0.1:6379", "Embedded Redis listen address")
	devserverCmd.Flags().StringVar(&devPrefix, "prefix", "", "Redis channel prefix (default taskboard)")
	devserverCmd.Flags().StringVar(&devSecret, "secret", "", "Token signing secret (random when empty)")
	devserverCmd.Flags().IntVar(&devFailMoves, "fail-moves", 0, "Reject the next N card moves with 409")
	rootCmd.AddCommand(devserverCmd)
}

func runDevserver(cmd *cobra.Command, args []string) error {
	logrus.SetOutput(printer.ErrOut)
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "devserver")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mr := miniredis.NewMiniRedis()
	if err := mr.StartAddr(devRedisAddr); err != nil {
		return printer.Error(
			"failed to start embedded Redis",
			err.Error(),
			[]string{"Choose another address:\n  taskboard devserver --redis-addr 127.0.0.1:6380"},
		)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := sandbox.NewStore()
	if err := store.Seed(sandbox.DemoBoard()); err != nil {
		return fmt.Errorf("failed to seed demo board: %w", err)
	}
	for _, u := range sandbox.DemoUsers {
		store.AddUser(u)
	}

	secret := devSecret
	if secret == "" {
		secret = uuid.NewString()
	}
	issuer, err := auth.NewIssuer(secret, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	pub := sandbox.NewRedisPublisher(rdb, devPrefix, logrus.WithField("component", "relay"))
	ready := make(chan struct{})
	relayErr := make(chan error, 1)
	go func() { relayErr <- pub.Relay(ctx, ready) }()
	select {
	case <-ready:
	case err := <-relayErr:
		return fmt.Errorf("failed to start relay: %w", err)
	}

	srv := sandbox.NewServer(store, issuer, pub, logrus.WithField("component", "sandbox"))
	if devFailMoves > 0 {
		srv.FailMoves(devFailMoves)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(devAddr) }()

	printer.Success("API listening on http://%s\n", devAddr)
	printer.Success("Message bus on redis://%s/0\n", mr.Addr())
	printer.Info("\nDemo board %d is seeded. Tokens:\n", sandbox.DemoBoardID)
	for _, u := range sandbox.DemoUsers {
		token, err := issuer.Issue(u.ID, u.Username, u.Email)
		if err != nil {
			return fmt.Errorf("failed to issue token for %s: %w", u.Username, err)
		}
		printer.Info("  %s: %s\n", u.Username, token)
	}
	printer.Info("\nexport TASKBOARD_API_URL=http://%s TASKBOARD_BUS_URL=redis://%s/0\n\n", devAddr, mr.Addr())

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return printer.Error("API server stopped", err.Error(), nil)
		}
	}

	printer.Step("Shutting down\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API shutdown failed")
	}
	return nil
}
