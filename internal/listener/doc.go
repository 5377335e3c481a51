// Package listener runs one websocket listener session.
//
// A session subscribes to the hub, sends the current state of the polls it watches, then
// forwards newer snapshots as JSON text frames until the client closes, a write fails, the hub
// drops the subscription or the context is cancelled. Whichever side ends first tears down the other.
package listener
