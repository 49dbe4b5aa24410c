// Package sink implements delivery targets for normalized events.
//
// Sinks:
//   - Stdout sink (JSON lines, one event per line)
//   - NATS sink (one subject per event type)
//   - Postgres sink (batched inserts with ON CONFLICT DO NOTHING)
//   - Discard sink (accepts and drops everything)
//
// All sinks tolerate duplicate delivery. The Postgres sink deduplicates on
// event_id, so frames replayed across reconnects never produce duplicate rows.
package sink
