package bus

import "time"

// Event kinds follow a dotted namespace convention:
//
//	rt.*      raw realtime socket events (rt.message_sent, rt.receive_message)
//	chat.*    messenger state changes (chat.updated, chat.send_unacked)
//	session.* auth and connection lifecycle
//	sync.*    cache ingestion progress
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
