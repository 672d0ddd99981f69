/*
Package observability turns engine lifecycle hooks into telemetry.

Metrics records Prometheus series for node visits, node latency, tool calls
and run outcomes; LogHooks writes the same events as structured slog records.
Both return domain.LifecycleHooks and compose with domain.ComposeHooks.
*/
package observability
