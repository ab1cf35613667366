package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/printer"
	"github.com/freudmarin/TaskBoardApp/internal/reconciler"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	moveToList    int64
	moveBefore    int64
	moveBroadcast bool
)

var moveCmd = &cobra.Command{
	Use:   "move <board-id> <card-id>",
	Short: "Move a card to another list or position",
	Long: `Move a card and commit the placement to the server.

Use --list to drop the card at the end of a list, or --before to drop it at
another card's position. If the server rejects the move the board is reloaded
and printed as the server has it.

Examples:
  # Move card 100 to the end of list 11
  taskboard move 1 100 --list 11

  # Put card 102 where card 100 is
  taskboard move 1 102 --before 100`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	moveCmd.Flags().Int64Var(&moveToList, "list", 0, "Destination list id")
	moveCmd.Flags().Int64Var(&moveBefore, "before", 0, "Card whose position to take")
	moveCmd.Flags().BoolVar(&moveBroadcast, "broadcast", false, "Also announce the move on the message bus")
	moveCmd.MarkFlagsMutuallyExclusive("list", "before")
	moveCmd.MarkFlagsOneRequired("list", "before")
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	boardID, err := parseID("board", args[0])
	if err != nil {
		return err
	}
	cardID, err := parseID("card", args[1])
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

	snapshot, err := client.GetBoard(ctx, boardID)
	if err != nil {
		return apiError("load board", cfg, err)
	}
	model := board.NewModel(snapshot)
	recon := reconciler.New(model, logrus.WithField("component", "reconciler"))

	target := reconciler.ListTarget(moveToList)
	if moveBefore != 0 {
		target = reconciler.CardTarget(moveBefore)
	}

	if err := recon.Start(cardID); err != nil {
		return printer.Error("card not found", err.Error(), []string{fmt.Sprintf("Show the board:\n  taskboard show %d", boardID)})
	}
	if _, err := recon.Over(target); err != nil {
		recon.Cancel()
		return printer.Error("invalid drop target", err.Error(), []string{fmt.Sprintf("Show the board:\n  taskboard show %d", boardID)})
	}

	outcome, err := recon.Drop(ctx, target, api.Mover{Client: client}, client)
	switch {
	case err != nil && errors.Is(err, board.ErrListNotFound):
		return printer.Error("invalid drop target", err.Error(), nil)
	case err != nil:
		return apiError("move card", cfg, err)
	}

	switch outcome {
	case reconciler.Unchanged:
		printer.Info("Card %d is already there\n", cardID)
		return nil
	case reconciler.Reverted:
		printer.Warning("Server rejected the move; board reloaded\n\n")
		return printer.FormatBoard(printer.Out, model.Board())
	}

	card, listID, _, _ := model.FindCard(cardID)
	printer.Success("Moved card %d to list %d position %d\n", cardID, listID, card.Position)

	if moveBroadcast {
		mgr, err := connectBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()
		if err := mgr.PublishCardMove(ctx, boardID, cardID, listID, card.Position); err != nil {
			return fmt.Errorf("failed to broadcast move: %w", err)
		}
		printer.Step("Broadcast to board %d\n", boardID)
	}
	return nil
}
