package pos

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Options carries the collaborators every adapter shares.
type Options struct {
	Log CallLogger
	// HTTPClient overrides the vendor default client; its timeout is left untouched.
	HTTPClient *http.Client
}

type Factory func(s Settings, opts Options) Adapter

// Registry maps vendor ids to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      Options
}

// Vendor ids.
const (
	VendorSMRT       = "smrt"
	VendorSPOT       = "spot"
	VendorCleanCloud = "cleancloud"
)

// NewRegistry returns a registry with every built-in vendor registered.
func NewRegistry(opts Options) *Registry {
	r := &Registry{factories: map[string]Factory{}, opts: opts}
	r.Register(VendorSMRT, func(s Settings, o Options) Adapter { return NewSMRT(s.SMRT, o) })
	r.Register(VendorSPOT, func(s Settings, o Options) Adapter { return NewSPOT(s.SPOT, o) })
	r.Register(VendorCleanCloud, func(s Settings, o Options) Adapter { return NewCleanCloud(s.CleanCloud, o) })
	return r
}

func (r *Registry) Register(vendor string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(vendor)] = f
}

func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the adapter selected by s.System. It fails with a NotConfigured error
// when no vendor is selected, the vendor is unknown, or its credentials are incomplete.
func (r *Registry) Resolve(ctx context.Context, s Settings) (Adapter, error) {
	vendor := strings.ToLower(strings.TrimSpace(s.System))
	if vendor == "" || vendor == "none" {
		return nil, &Error{Kind: KindNotConfigured, Code: "no_pos_system", Message: "no POS system selected"}
	}

	r.mu.RLock()
	f, ok := r.factories[vendor]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: KindNotConfigured, Code: "unknown_pos_system", Message: "unknown POS system " + vendor}
	}

	a := f(s, r.opts)
	if !a.IsConfigured() {
		newRecorder(vendor, r.opts.Log).skipped(ctx, "resolve", nil, "credentials missing")
		return nil, notConfigured(a.Name())
	}
	return a, nil
}
