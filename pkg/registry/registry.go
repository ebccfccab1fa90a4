// Package registry maps method targets to handlers: resources by URI,
// templated resources by URI pattern, and tools by name. Entries are
// registered at startup; updates swap a copy-on-write snapshot so concurrent
// dispatches never observe a partially-updated registry.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/agentwire/agentwire/pkg/protocol"
)

// ResourceEntry is one registered resource. Static entries carry pre-declared
// contents; dynamic entries invoke their handler fresh on every read.
type ResourceEntry struct {
	Resource protocol.Resource
	Handler  ResourceHandler
	Template *URITemplate // non-nil for templated entries
}

// ToolEntry is one registered tool.
type ToolEntry struct {
	Tool    protocol.Tool
	Handler ToolHandler
	Enabled EnabledFunc // nil means always enabled
}

// Snapshot is an immutable view of the registry. Lookups on a snapshot are
// lock-free and stay consistent for the duration of a dispatch.
type Snapshot struct {
	byURI     map[string]*ResourceEntry
	templates []*ResourceEntry
	tools     map[string]*ToolEntry
	resources []*ResourceEntry // registration order for listing
	toolOrder []*ToolEntry
}

// Registry is the mutable handle. Register calls rebuild the snapshot under
// a write lock; Load is a single atomic pointer read.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	byURI     map[string]*ResourceEntry
	templates []*ResourceEntry
	tools     map[string]*ToolEntry
	resources []*ResourceEntry
	toolOrder []*ToolEntry
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{
		byURI: make(map[string]*ResourceEntry),
		tools: make(map[string]*ToolEntry),
	}
	r.snapshot.Store(r.buildSnapshot())
	return r
}

// RegisterStatic registers a resource whose contents never change. Reads are
// byte-identical across calls.
func (r *Registry) RegisterStatic(res protocol.Resource, contents protocol.ResourceContents) error {
	if contents.URI == "" {
		contents.URI = res.URI
	}
	return r.RegisterResource(res, func(context.Context, ResourceRequest) (*protocol.ResourceContents, error) {
		c := contents
		return &c, nil
	})
}

// RegisterResource registers a dynamic resource under an exact URI. The
// handler runs fresh on every read; the engine performs no caching.
func (r *Registry) RegisterResource(res protocol.Resource, handler ResourceHandler) error {
	if res.URI == "" {
		return fmt.Errorf("resource %q has no URI", res.Name)
	}
	if handler == nil {
		return fmt.Errorf("resource %q has no handler", res.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byURI[res.URI]; exists {
		return fmt.Errorf("resource URI already registered: %s", res.URI)
	}
	entry := &ResourceEntry{Resource: res, Handler: handler}
	r.byURI[res.URI] = entry
	r.resources = append(r.resources, entry)
	r.publish()
	return nil
}

// RegisterTemplate registers a templated resource. The pattern's {param}
// placeholders are extracted positionally at dispatch time and passed to the
// handler via ResourceRequest.Args.
func (r *Registry) RegisterTemplate(res protocol.Resource, handler ResourceHandler) error {
	if res.URITemplate == "" {
		return fmt.Errorf("templated resource %q has no uriTemplate", res.Name)
	}
	if handler == nil {
		return fmt.Errorf("templated resource %q has no handler", res.Name)
	}
	tmpl, err := CompileTemplate(res.URITemplate)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.Resource.URITemplate == res.URITemplate {
			return fmt.Errorf("resource template already registered: %s", res.URITemplate)
		}
	}
	entry := &ResourceEntry{Resource: res, Handler: handler, Template: tmpl}
	r.templates = append(r.templates, entry)
	r.resources = append(r.resources, entry)
	r.publish()
	return nil
}

// RegisterTool registers a tool by name. A nil enabled predicate means the
// tool is always visible.
func (r *Registry) RegisterTool(tool protocol.Tool, handler ToolHandler, enabled EnabledFunc) error {
	if tool.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	entry := &ToolEntry{Tool: tool, Handler: handler, Enabled: enabled}
	r.tools[tool.Name] = entry
	r.toolOrder = append(r.toolOrder, entry)
	r.publish()
	return nil
}

// publish rebuilds and swaps the snapshot. Caller holds r.mu.
func (r *Registry) publish() {
	r.snapshot.Store(r.buildSnapshot())
}

func (r *Registry) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		byURI:     make(map[string]*ResourceEntry, len(r.byURI)),
		templates: append([]*ResourceEntry(nil), r.templates...),
		tools:     make(map[string]*ToolEntry, len(r.tools)),
		resources: append([]*ResourceEntry(nil), r.resources...),
		toolOrder: append([]*ToolEntry(nil), r.toolOrder...),
	}
	for uri, entry := range r.byURI {
		snap.byURI[uri] = entry
	}
	for name, entry := range r.tools {
		snap.tools[name] = entry
	}
	return snap
}

// Load returns the current immutable snapshot.
func (r *Registry) Load() *Snapshot {
	return r.snapshot.Load()
}

// ResolveResource finds the entry for a concrete URI. Exact matches win over
// templates; templates are tried in registration order.
func (s *Snapshot) ResolveResource(uri string) (*ResourceEntry, map[string]string, bool) {
	if entry, ok := s.byURI[uri]; ok {
		return entry, nil, true
	}
	for _, entry := range s.templates {
		if args, ok := entry.Template.Match(uri); ok {
			return entry, args, true
		}
	}
	return nil, nil, false
}

// Resources returns all resource descriptors, optionally filtered by scheme.
// A scheme matching nothing yields an empty slice, not an error. The result
// is sorted by URI (templates by pattern) for stable listings.
func (s *Snapshot) Resources(scheme string) []protocol.Resource {
	out := make([]protocol.Resource, 0, len(s.resources))
	for _, entry := range s.resources {
		key := entry.Resource.URI
		if entry.Template != nil {
			key = entry.Resource.URITemplate
		}
		if scheme != "" && Scheme(key) != scheme {
			continue
		}
		out = append(out, entry.Resource)
	}
	sort.Slice(out, func(i, j int) bool {
		return listKey(out[i]) < listKey(out[j])
	})
	return out
}

func listKey(res protocol.Resource) string {
	if res.URI != "" {
		return res.URI
	}
	return res.URITemplate
}

// FindTool looks a tool up by exact name, honoring its enabled predicate. A
// disabled tool reports !ok exactly like an unregistered one.
func (s *Snapshot) FindTool(ctx context.Context, name string) (*ToolEntry, bool) {
	entry, ok := s.tools[name]
	if !ok {
		return nil, false
	}
	if entry.Enabled != nil && !entry.Enabled(ctx) {
		return nil, false
	}
	return entry, true
}

// Tools returns descriptors of all tools currently enabled for ctx, in
// registration order.
func (s *Snapshot) Tools(ctx context.Context) []protocol.Tool {
	out := make([]protocol.Tool, 0, len(s.toolOrder))
	for _, entry := range s.toolOrder {
		if entry.Enabled != nil && !entry.Enabled(ctx) {
			continue
		}
		out = append(out, entry.Tool)
	}
	return out
}
