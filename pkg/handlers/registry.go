package handlers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

// ErrUnknownStream is returned when a binding names a kind nothing registered.
var ErrUnknownStream = errors.New("no handler registered for stream")

// Registry maps kind names to handlers. It is built once and never mutated.
type Registry struct {
	kinds map[string]pipeline.Handler
}

// NewRegistry fails on duplicate kind names.
func NewRegistry(hs ...pipeline.Handler) (*Registry, error) {
	r := &Registry{kinds: make(map[string]pipeline.Handler, len(hs))}
	for _, h := range hs {
		if _, ok := r.kinds[h.Kind()]; ok {
			return nil, fmt.Errorf("duplicate handler for kind %q", h.Kind())
		}
		r.kinds[h.Kind()] = h
	}
	return r, nil
}

// Default returns a registry of every event kind this service understands.
func Default() *Registry {
	r, err := NewRegistry(
		NftMintKind,
		NftTransferKind,
		NftBurnKind,
		PotlockDonationKind,
		PotlockPotProjectDonationKind,
		PotlockPotDonationKind,
		TradePoolKind,
		TradeSwapKind,
		TradePoolChangeKind,
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind string) (pipeline.Handler, error) {
	h, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, kind)
	}
	return h, nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Binding attaches a handler to the stream it consumes.
type Binding struct {
	Stream  string
	Handler pipeline.Handler
}

// Bind resolves bindings of the form "kind" or "stream=kind". No bindings
// binds every registered kind to a stream of the same name. Every error here is
// a startup configuration error.
func (r *Registry) Bind(entries []string) ([]Binding, error) {
	if len(entries) == 0 {
		entries = r.Kinds()
	}

	seen := make(map[string]struct{}, len(entries))
	bindings := make([]Binding, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		stream, kind, found := strings.Cut(entry, "=")
		if !found {
			kind = stream
		}
		stream, kind = strings.TrimSpace(stream), strings.TrimSpace(kind)
		if stream == "" || kind == "" {
			return nil, fmt.Errorf("invalid stream binding %q", entry)
		}

		h, err := r.Lookup(kind)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[stream]; ok {
			return nil, fmt.Errorf("stream %q bound more than once", stream)
		}
		seen[stream] = struct{}{}
		bindings = append(bindings, Binding{Stream: stream, Handler: h})
	}
	return bindings, nil
}
