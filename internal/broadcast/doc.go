// Package broadcast implements the in-process snapshot hub using the actor pattern.
//
// Publishers drop snapshots into a per-poll mailbox that keeps only the newest revision and never blocks.
// A single goroutine owns the subscriber set, drains the mailbox and fans out to bounded per-subscriber
// queues. A subscriber whose queue is full is evicted rather than allowed to stall everyone else.
package broadcast
