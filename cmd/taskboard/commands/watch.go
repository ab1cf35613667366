package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/filter"
	"github.com/freudmarin/TaskBoardApp/internal/notify"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/internal/session"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watchOutput  string
	watchType    string
	watchUser    string
	watchRender  bool
	watchNoToast bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <board-id>",
	Short: "Follow a board in real time",
	Long: `Follow a board's live event stream.

Each event from the message bus is printed as it arrives. Changes by other
users also raise a short-lived notification. The connection is re-established
automatically if it drops, and the board is reloaded after a reconnect.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch the demo board
  taskboard watch 1

  # Only card events, re-rendering the board after each change
  taskboard watch 1 --type 'CARD_*' --render

  # Export events as JSON
  taskboard watch 1 --output=json > events.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchType, "type", "", "Glob over the event type, e.g. 'CARD_*'")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "Only events by this username")
	watchCmd.Flags().BoolVar(&watchRender, "render", false, "Print the whole board after each change")
	watchCmd.Flags().BoolVar(&watchNoToast, "no-notifications", false, "Do not print notifications")
	rootCmd.AddCommand(watchCmd)
}

// eventLine is the JSON shape of one watched event.
type eventLine struct {
	Time     time.Time     `json:"time"`
	Type     bus.EventType `json:"type"`
	BoardID  *int64        `json:"boardId,omitempty"`
	UserID   *int64        `json:"userId,omitempty"`
	Username string        `json:"username,omitempty"`
	Event    bus.Event     `json:"event"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutput != "default" && watchOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutput),
			[]string{"Valid formats: default, json"},
		)
	}
	boardID, err := parseID("board", args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	mgr, err := connectBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()

	var mu sync.Mutex
	criteria := &filter.Criteria{TypeGlob: watchType, Username: watchUser}
	jsonOut := watchOutput == "json"

	printEvent := func(ev bus.Event) {
		now := time.Now()
		if !criteria.MatchesEvent(ev, now) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if jsonOut {
			h := ev.EventHeader()
			raw, err := json.Marshal(eventLine{Time: now, Type: h.Type, BoardID: h.BoardID, UserID: h.UserID, Username: h.Username, Event: ev})
			if err != nil {
				logrus.WithError(err).Warn("Failed to encode event")
				return
			}
			printer.FormatJSONL(printer.Out, raw)
			return
		}
		printer.FormatEvent(printer.Out, ev, now)
	}
	handlerID, err := mgr.Subscribe(boardID, printEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to board %d: %w", boardID, err)
	}
	defer mgr.RemoveHandler(boardID, handlerID)

	queue := notify.New(cfg.Identity.UserID, cfg.Identity.Username,
		notify.WithCapacity(cfg.Notifications.Capacity),
		notify.WithLifetime(cfg.Notifications.Lifetime),
		notify.WithLogger(logrus.WithField("component", "notify")))
	if !watchNoToast && !jsonOut {
		shown := map[string]bool{}
		queue.Subscribe(func(entries []notify.Entry) {
			var fresh []notify.Entry
			live := map[string]bool{}
			for _, e := range entries {
				live[e.ID] = true
				if !shown[e.ID] {
					fresh = append(fresh, e)
				}
			}
			shown = live
			if len(fresh) == 0 {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			printer.FormatToasts(printer.Out, fresh)
		})
	}

	sess, err := session.Open(ctx, session.Config{
		BoardID:       boardID,
		API:           client,
		Bus:           mgr,
		UserID:        cfg.Identity.UserID,
		Username:      cfg.Identity.Username,
		Notifications: queue,
		OnChange: func(b *board.Board) {
			if !watchRender || jsonOut {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(printer.Out)
			printer.FormatBoard(printer.Out, b)
		},
		OnConnectivity: func(connected bool) {
			if jsonOut {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if connected {
				printer.Success("Connected to board %d\n", boardID)
			} else {
				printer.Warning("Connection lost, reconnecting...\n")
			}
		},
		Logger: logrus.WithField("component", "session"),
	})
	if err != nil {
		return apiError(fmt.Sprintf("open board %d", boardID), cfg, err)
	}
	defer sess.Close()

	if !jsonOut {
		snapshot, err := sess.Board()
		if err == nil {
			mu.Lock()
			printer.FormatBoard(printer.Out, snapshot)
			fmt.Fprintln(printer.Out)
			printer.Step("Watching board %d (Ctrl+C to stop)\n", boardID)
			mu.Unlock()
		}
	}

	<-ctx.Done()
	return nil
}
