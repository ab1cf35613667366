// Package bus connects a client to the board message bus and delivers decoded
// board events to registered handlers.
//
// # Overview
//
// A single Manager owns one logical connection for the whole process. Board
// views register a Handler per board; the Manager opens exactly one topic
// subscription per board regardless of how many handlers share it, and sends
// the subscribe-intent message once, when that subscription is first opened.
//
// The wire connection itself is a Transport produced by a DialFunc. Two
// transports ship with the module:
//
//   - stompbus speaks STOMP 1.2 over WebSocket or TCP, matching the board
//     server's broker.
//   - redisbus uses Redis Pub/Sub, for deployments that relay board events
//     through Redis and for tests.
//
// # Lifecycle
//
// The Manager moves through Disconnected, Connecting and Connected. An initial
// Connect that fails is reported to the caller and is not retried. Once a
// connection has been established, losing it triggers a reconnect every
// DefaultReconnectDelay until it succeeds or Disconnect is called; boards
// registered at the time of loss are resubscribed on the new transport.
//
// # Usage Example
//
//	mgr := bus.NewManager(stompbus.NewDialer("ws://localhost:8080/ws"))
//	defer mgr.Close()
//
//	if err := mgr.Connect(ctx, token); err != nil {
//		log.Fatal(err)
//	}
//
//	id, err := mgr.Subscribe(boardID, func(ev bus.Event) {
//		fmt.Println(ev.EventHeader().Type)
//	})
//	...
//	mgr.RemoveHandler(boardID, id)
//
// # Envelopes
//
// Every payload on a board topic is a JSON envelope with a type tag.
// DecodeEnvelope maps it onto one of a closed set of Event variants. Unknown
// type tags decode to Unknown rather than failing; malformed envelopes are
// logged and dropped by the Manager.
package bus
