package toolflow

import (
	"fmt"
	"sync"
	"time"
)

// ToolMetadata is the catalog's per-tool record: descriptive fields frozen
// at registration plus usage statistics mutated after every invocation.
type ToolMetadata struct {
	Name         string
	Description  string
	Capabilities []string
	Version      string
	Tags         []string

	// LastUsed is the time of the most recent invocation.
	LastUsed time.Time

	// UseCount is the cumulative number of invocations.
	UseCount int64

	// AvgDuration is the running average execution time, updated as
	// avg += (new - avg) / count.
	AvgDuration time.Duration

	// Extra holds free-form metadata, e.g. a declared "complexity"
	// hint in [0,1].
	Extra map[string]any
}

// clone returns a copy safe to hand out.
func (m *ToolMetadata) clone() ToolMetadata {
	out := *m
	out.Capabilities = append([]string(nil), m.Capabilities...)
	out.Tags = append([]string(nil), m.Tags...)
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Catalog is the shared registry of tools and their usage metadata.
// It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	meta  map[string]*ToolMetadata
	order []string // preserves registration order
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tools: make(map[string]Tool),
		meta:  make(map[string]*ToolMetadata),
	}
}

// Register adds a tool to the catalog. Descriptor fields are captured
// once at registration and treated as immutable afterwards. Tools
// implementing MetadataProvider contribute their extra metadata.
func (c *Catalog) Register(tool Tool, tags ...string) error {
	if tool == nil {
		return ErrNilTool
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrNilTool)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	meta := &ToolMetadata{
		Name:         name,
		Description:  tool.Description(),
		Capabilities: append([]string(nil), tool.Capabilities()...),
		Version:      tool.Version(),
		Tags:         append([]string(nil), tags...),
	}
	if mp, ok := tool.(MetadataProvider); ok {
		if extra := mp.Metadata(); len(extra) > 0 {
			meta.Extra = make(map[string]any, len(extra))
			for k, v := range extra {
				meta.Extra[k] = v
			}
		}
	}

	c.tools[name] = tool
	c.meta[name] = meta
	c.order = append(c.order, name)
	return nil
}

// Remove deletes a tool and its metadata from the catalog.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[name]; !exists {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	delete(c.tools, name)
	delete(c.meta, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a tool by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// Names returns all registered tool names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// Metadata returns a copy of a tool's metadata.
func (c *Catalog) Metadata(name string) (ToolMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.meta[name]
	if !ok {
		return ToolMetadata{}, false
	}
	return m.clone(), true
}

// AllMetadata returns copies of every tool's metadata in registration order.
func (c *Catalog) AllMetadata() []ToolMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolMetadata, 0, len(c.order))
	for _, name := range c.order {
		if m, ok := c.meta[name]; ok {
			out = append(out, m.clone())
		}
	}
	return out
}

// RecordInvocation updates a tool's usage statistics after an invocation:
// use count, last-used timestamp, and the running average duration.
// Unknown names are ignored (the tool may have been removed mid-flight).
func (c *Catalog) RecordInvocation(name string, elapsed time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.meta[name]
	if !ok {
		return
	}
	m.UseCount++
	m.LastUsed = time.Now()
	m.AvgDuration += (elapsed - m.AvgDuration) / time.Duration(m.UseCount)
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra["last_success"] = success
}
