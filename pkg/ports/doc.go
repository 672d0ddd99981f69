/*
Package ports defines the driven and driving ports (interfaces) of the arbor engine.

These interfaces decouple the scheduler from external implementations, allowing
runs to be persisted in various backends and exposed through various transports.

# Key Interfaces

  - CheckpointStore: persists and loads run checkpoints (memory, file, Redis).
  - DistributedLocker: serializes concurrent resumes of one run across replicas.
  - GraphLoader: retrieves declarative graph definitions (filesystem, memory).
  - Engine: what HTTP, MCP and CLI adapters need from arbor.Engine.
*/
package ports
