package tool

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

// Source lists stored tool definitions. Implemented by the store; a separate
// interface keeps this package free of persistence concerns.
type Source interface {
	ListTools(ctx context.Context) ([]Definition, error)
}

// StaticSource serves a fixed definition list. Useful for tests and for
// wiring built-in tools without a database.
type StaticSource []Definition

// ListTools implements Source.
func (s StaticSource) ListTools(context.Context) ([]Definition, error) { return s, nil }

// Registry resolves stored definitions into executable tools. Code-backed
// implementations are registered in-process; HTTP-backed tools are built from
// their stored spec on demand. The registry itself is read-mostly: Snapshot
// is called once per run and the result is immutable for that run.
type Registry struct {
	source     Source
	httpClient *http.Client

	mu    sync.RWMutex
	funcs map[string]*FunctionTool
}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// HTTPClient is shared by all HTTP-backed tools built from this registry.
	HTTPClient *http.Client
}

// NewRegistry creates a registry over the given definition source.
func NewRegistry(source Source, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{source: source, httpClient: opts.HTTPClient, funcs: map[string]*FunctionTool{}}
}

// RegisterFunction makes an in-process implementation available for
// definitions with Kind == KindFunction and a matching name.
func (r *Registry) RegisterFunction(t *FunctionTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[t.Name()] = t
}

// Snapshot reads the current catalog and returns the immutable per-run view
// for the named agent. Disabled definitions are included so the invoker can
// distinguish "disabled" from "unknown"; definitions assigned to other agents
// are excluded entirely.
func (r *Registry) Snapshot(ctx context.Context, agent string) (*Snapshot, error) {
	defs, err := r.source.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{defs: map[string]Definition{}, impls: map[string]Tool{}}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range defs {
		if !def.AssignedTo(agent) {
			continue
		}
		snap.defs[def.Name] = def

		switch def.Kind {
		case KindHTTP:
			impl, err := NewHTTPTool(def, func(o *HTTPToolOptions) { o.Client = r.httpClient })
			if err != nil {
				continue // malformed record; surfaced as not-found at call time
			}
			snap.impls[def.Name] = impl
		default:
			if fn, ok := r.funcs[def.Name]; ok {
				snap.impls[def.Name] = fn
			}
		}
	}
	return snap, nil
}

// Snapshot is the immutable tool catalog view one run operates on. Reading a
// fresh snapshot per run means catalog changes apply between runs but never
// mid-run.
type Snapshot struct {
	defs  map[string]Definition
	impls map[string]Tool
}

// Lookup returns the definition and implementation for a name. The
// implementation may be nil for a definition whose code-backed function was
// never registered.
func (s *Snapshot) Lookup(name string) (Definition, Tool, bool) {
	def, ok := s.defs[name]
	if !ok {
		return Definition{}, nil, false
	}
	return def, s.impls[name], true
}

// Definitions returns the enabled definitions sorted by name, the shape the
// reasoning prompt consumes.
func (s *Snapshot) Definitions() []Definition {
	out := make([]Definition, 0, len(s.defs))
	for _, def := range s.defs {
		if def.Enabled {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of definitions in the snapshot, disabled included.
func (s *Snapshot) Len() int { return len(s.defs) }
