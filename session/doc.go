// Package session provides SessionStore and MessageStore implementations:
// a volatile in-memory store for tests and demos, a Redis-backed store for
// shared deployments, and a SQLite-backed store for durable single-node use.
// All implementations are interchangeable behind the core store interfaces.
package session
