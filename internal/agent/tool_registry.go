package agent

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/haasonsaas/claudekit/pkg/models"
)

// toolNamePattern is the invariant from spec.md §3: a tool descriptor's
// name matches [A-Za-z0-9_-]+.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ToolRegistry is the mapping name → Tool from spec.md §4.7, with
// Tool.Descriptor() yielding the descriptor used in requests. It is safe
// for concurrent reads; registration is expected to happen once, before
// a Runner starts looping, but the mutex makes concurrent mutation safe
// too.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds tool under its descriptor's name, replacing any existing
// tool of the same name. It panics on an invalid name or schema, since a
// bad tool descriptor is a programming error the caller should fix
// before ever running the loop — the spec's invariant is unconditional,
// not a runtime-recoverable condition.
func (r *ToolRegistry) Register(tool Tool) {
	d := tool.Descriptor()
	if !toolNamePattern.MatchString(d.Name) {
		panic(fmt.Sprintf("agent: invalid tool name %q: must match [A-Za-z0-9_-]+", d.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = tool
}

// Unregister removes a tool by name. It is a no-op if name is unknown.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name, if any.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// DescribeAll returns the descriptors of every registered tool, in no
// particular order. The runner calls this once per Run and sends the
// result unchanged on every iteration, per spec.md §4.7's "Tool
// descriptors sent to the model must equal what the registry advertises."
func (r *ToolRegistry) DescribeAll() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor())
	}
	return out
}

// Len reports the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
