// Package runtime implements the super-step scheduler behind arbor.Engine.
//
// A run is a sequence of super-steps. Each step invokes every node of the
// frontier, merges their updates in registration order and resolves the next
// frontier. Nodes with disjoint declared fields share a snapshot and run
// concurrently; the others are serialized. All progress is recorded in a
// domain.Checkpoint, which is enough to resume a suspended run.
package runtime
