// Package postgres implements the authcore durable store interfaces on
// PostgreSQL via pgx. It owns the schema for accounts, session metadata,
// cancellations, suspensions, and security events.
package postgres
