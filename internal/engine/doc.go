// Package engine contains the reactor simulation loop.
// This is the heartbeat of the control room.
//
// ARCHITECTURAL RULE: The Engine is not safe for concurrent use. Tick and every
// operator mutator must run on one goroutine; the Ticker is that goroutine.
// Displays never touch engine state: they subscribe to the bus and render the
// snapshots it publishes.
package engine
