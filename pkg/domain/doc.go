/*
Package domain contains the core data model of the arbor engine.

It defines the shared state threaded through a graph execution, the reducers
that merge partial updates into it, and the records a run produces. This
package is kept pure and free of I/O so that every adapter and runtime can
depend on it.

# Key Entities

  - State / Update: the mapping of named fields and the partial result of a node.
  - Schema / Reducer: per-field merge rules (Overwrite, Append, MergeMap, Custom).
  - Message / Envelope: conversation entries and agent mailbox entries.
  - Checkpoint: the persisted snapshot of a suspended or finished run.
  - Trace / Result: the ordered log of node invocations and the run outcome.
*/
package domain
