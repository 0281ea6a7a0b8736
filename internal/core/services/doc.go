// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services are pure Go with no CGO. Besides the ports they only depend on
// the logger, golang.org/x/sync for request coalescing and fan-out, and
// ULIDs for document identifiers.
package services
