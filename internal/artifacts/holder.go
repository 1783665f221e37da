package artifacts

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fidde/agripredict/internal/schema"
)

// Holder owns the current Bundle. Requests read it without locking; a reload
// builds a new Bundle and swaps the pointer, never mutating one in place.
type Holder struct {
	paths  Paths
	schema *schema.Schema
	logger *slog.Logger

	current atomic.Pointer[Bundle]

	mu     sync.Mutex
	onSwap []func(*Bundle)
}

// NewHolder loads the artifacts once and returns a holder for them.
func NewHolder(paths Paths, s *schema.Schema, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{paths: paths, schema: s, logger: logger}
	h.current.Store(Load(paths, s, logger))
	return h
}

// Current returns the active bundle.
func (h *Holder) Current() *Bundle {
	return h.current.Load()
}

// Ready reports whether the active bundle can serve predictions.
func (h *Holder) Ready() bool {
	return h.Current().Ready()
}

// Reload loads the artifacts again and swaps them in. The new bundle
// replaces the old one even when it is not ready, so a broken deploy is
// visible rather than masked by stale artifacts.
func (h *Holder) Reload() *Bundle {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := Load(h.paths, h.schema, h.logger)
	h.current.Store(b)
	for _, fn := range h.onSwap {
		fn(b)
	}
	return b
}

// OnSwap registers fn to run after every reload. It is also called
// immediately with the current bundle.
func (h *Holder) OnSwap(fn func(*Bundle)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.onSwap = append(h.onSwap, fn)
	fn(h.Current())
}
