// Package integration provides integration tests for the site discovery server.
// These tests run the complete server lifecycle against a mock forum listing,
// covering bootstrap and admin-triggered synchronization, the read API and
// PostgreSQL-backed storage shared between instances.
package integration
