// Package testutil provides shared fixtures for vault tests and the
// conformance harness.
package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/custodia-health/custodia/internal/clock"
	"github.com/custodia-health/custodia/internal/vault"
)

// Epoch is the instant every deterministic test clock starts at.
var Epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// NewClock creates a deterministic clock pinned at Epoch.
func NewClock() *clock.Fixed {
	return clock.NewFixed(Epoch)
}

// NewVault creates an empty vault with a deterministic clock and a discarded
// log stream. Returns the clock so tests can advance time.
func NewVault() (*vault.Vault, *clock.Fixed) {
	clk := NewClock()
	v := vault.New(
		vault.WithClock(clk),
		vault.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return v, clk
}
