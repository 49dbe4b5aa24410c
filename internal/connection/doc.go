// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one WebSocket session per configured topic pattern
//   - Reconnects each session independently with exponential backoff
//   - Normalizes received frames and merges them into one event stream
//   - Shuts sessions down gracefully within a bounded grace period
package connection
