// Package internal holds the RSVP server implementation.
//
// Layout:
//   - api: router, HTTP handlers, middleware and the error envelope
//   - domain: accounts, events and registrations services with their repository contracts
//   - storage/postgres: pgx repositories and schema migrations
//   - jobs, email: confirmation delivery through River
//   - auth, config, metrics, telemetry, validation, sanitize: shared infrastructure
package internal
