// Package poll implements the in-memory poll registry and its identifier allocator.
//
// The Registry is the single source of truth for polls. One RWMutex covers the whole map:
// reads run concurrently, every write excludes everything else, and callers only ever see
// copies (domain.Snapshot), never the live state.
package poll
