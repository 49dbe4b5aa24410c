// Package database provides connection pool management for the Postgres
// event store.
package database
