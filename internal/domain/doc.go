// Package domain defines the core poll types, error kinds and contracts.
//
// Concept-oriented files (poll.go, vote.go, errors.go, publisher.go) hold shared value types and
// the interfaces other packages depend on. No implementation code - just contracts.
package domain
