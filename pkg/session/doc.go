/*
Package session serializes access to run checkpoints.

A Manager guards each run ID with a reference-counted local mutex and,
optionally, a ports.DistributedLocker so that replicas sharing a
CheckpointStore never resume the same run concurrently.
*/
package session
