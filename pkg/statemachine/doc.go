// Package statemachine provides a generic transition table for lifecycle
// states stored outside the process (database rows, cache entries).
//
//	type Status string
//	type Event string
//
//	lifecycle := statemachine.New[Status, Event]().
//		Allow("claim", "sending", "pending", "failed").
//		Allow("succeed", "sent", "sending").
//		Allow("fail", "failed", "sending").
//		Terminal("sent")
//
//	next, err := lifecycle.Next(row.Status, "claim")
//
// The table is safe for concurrent reads once configured.
package statemachine
