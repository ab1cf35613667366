package redisbus

import "fmt"

// Redis Pub/Sub channel helpers
//
// Channels are namespaced by a prefix so several deployments can share one
// Redis server.
//
// Channel pattern: {prefix}:board:{board_id}[:{destination}]

// DefaultPrefix is the channel namespace used when none is configured.
const DefaultPrefix = "taskboard"

// BoardChannel returns the topic channel for a board's events.
// Pattern: {prefix}:board:{board_id}
func BoardChannel(prefix string, boardID int64) string {
	return fmt.Sprintf("%s:board:%d", prefix, boardID)
}

// SubscribeChannel returns the channel that receives subscribe-intent messages.
// Pattern: {prefix}:board:{board_id}:subscribe
func SubscribeChannel(prefix string, boardID int64) string {
	return fmt.Sprintf("%s:board:%d:subscribe", prefix, boardID)
}

// CardMoveChannel returns the channel that receives card-move broadcasts.
// Pattern: {prefix}:board:{board_id}:card-move
func CardMoveChannel(prefix string, boardID int64) string {
	return fmt.Sprintf("%s:board:%d:card-move", prefix, boardID)
}
