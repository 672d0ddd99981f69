/*
Package agents coordinates several graph runners that talk through a mailbox.

Each Agent wraps a Runner (usually an engine compiled from its own graph) and
owns a private state that survives between its turns. A Coordinator picks the
next speaker with a TurnPolicy, moves the envelopes addressed to it into its
mailbox field, runs its graph to completion or suspension, and posts whatever
it left in its outbox field back to the shared Mailbox.

A coordination ends when an agent posts a Final envelope (only the finisher
counts when one is designated), when the policy has nobody left to schedule,
or with ErrTurnLimit once the turn budget is spent.
*/
package agents
