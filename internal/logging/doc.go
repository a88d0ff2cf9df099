// Package logging provides file-based logging with rotation for indexwarden.
// The serve daemon writes structured JSON logs to ~/.indexwarden/logs/ so that
// audit runs and outbox dispatch can be traced after the fact.
//
// Short-lived commands log to stderr only unless --debug is set.
package logging
