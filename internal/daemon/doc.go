// Package daemon coordinates the long-running clipsmith process.
//
// It wires configuration, queue storage, the tenant inbox, the event hub, and
// the pipeline orchestrator into a single lifecycle with flock-based locking
// to prevent multiple instances. The daemon also owns the HTTP API used for
// clip submission and live event streaming.
//
// Keep orchestration logic here: individual pipeline stages live in their own
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
