package sift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	sjschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler is one tool implementation: a pluggable capability the model can
// invoke. A Handler may expose several tool functions; Execute receives the
// resolved function name.
type Handler interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// catalogEntry binds one tool function to its handler, group, and compiled
// argument schema.
type catalogEntry struct {
	def     ToolDefinition
	group   string
	handler Handler
	schema  *sjschema.Schema // nil when the tool declares no parameters
}

// Catalog is the name-keyed tool registry, built once at startup. Every
// tool belongs to exactly one named group; the group charter is injected as
// a transient system message when the orchestration loop hands off between
// groups.
type Catalog struct {
	entries map[string]*catalogEntry
	order   []string
	groups  map[string]string // group -> charter
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[string]*catalogEntry),
		groups:  make(map[string]string),
	}
}

// AddGroup declares a capability group and its charter — the system-prompt
// text describing the group's boundaries, used on handoff.
func (c *Catalog) AddGroup(name, charter string) {
	c.groups[name] = charter
}

// Register adds all of a handler's tool functions under the given group.
// The group must have been declared with AddGroup, tool names must be
// unique across the catalog, and each non-empty parameter schema must
// compile. Names are normalized to the function-calling form; handlers
// receive the normalized name in Execute.
func (c *Catalog) Register(group string, h Handler) error {
	if _, ok := c.groups[group]; !ok {
		return fmt.Errorf("catalog: unknown group %q", group)
	}
	for _, def := range h.Definitions() {
		if def.Name == "" {
			return fmt.Errorf("catalog: handler %T has a tool with no name", h)
		}
		def.Name = sanitizeToolName(def.Name)
		if _, dup := c.entries[def.Name]; dup {
			return fmt.Errorf("catalog: duplicate tool %q", def.Name)
		}
		sch, err := compileParams(def.Name, def.Parameters)
		if err != nil {
			return err
		}
		c.entries[def.Name] = &catalogEntry{def: def, group: group, handler: h, schema: sch}
		c.order = append(c.order, def.Name)
	}
	return nil
}

// compileParams compiles a tool's JSON Schema parameters for argument
// validation. An empty schema disables validation for that tool.
func compileParams(name string, params json.RawMessage) (*sjschema.Schema, error) {
	if len(params) == 0 || string(params) == "{}" {
		return nil, nil
	}
	doc, err := sjschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return nil, fmt.Errorf("catalog: tool %q: invalid parameter schema: %w", name, err)
	}
	compiler := sjschema.NewCompiler()
	res := name + ".schema.json"
	if err := compiler.AddResource(res, doc); err != nil {
		return nil, fmt.Errorf("catalog: tool %q: %w", name, err)
	}
	sch, err := compiler.Compile(res)
	if err != nil {
		return nil, fmt.Errorf("catalog: tool %q: compile parameter schema: %w", name, err)
	}
	return sch, nil
}

// Definitions returns all tool definitions in registration order, ready to
// attach to a model request.
func (c *Catalog) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.entries[name].def)
	}
	return defs
}

// Lookup resolves a tool name to its handler and group.
func (c *Catalog) Lookup(name string) (Handler, string, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, "", false
	}
	return e.handler, e.group, true
}

// Charter returns the charter text for a group.
func (c *Catalog) Charter(group string) string {
	return c.groups[group]
}

// Names returns all registered tool names, sorted, for "unknown tool"
// self-correction messages.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.order))
	names = append(names, c.order...)
	sort.Strings(names)
	return names
}

// ValidateArgs checks decoded arguments against the tool's parameter
// schema. Tools with no declared schema accept anything.
func (c *Catalog) ValidateArgs(name string, args any) error {
	e, ok := c.entries[name]
	if !ok || e.schema == nil {
		return nil
	}
	if err := e.schema.Validate(args); err != nil {
		return fmt.Errorf("tool %s: arguments failed schema validation: %w", name, err)
	}
	return nil
}

// SchemaFor generates a JSON Schema for a tool's argument struct. Tools use
// this to derive Parameters from a plain Go type instead of hand-writing
// schema literals.
func SchemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)
	s.Version = "" // chat-completions tool schemas omit $schema
	data, err := json.Marshal(s)
	if err != nil {
		// Reflect output always marshals; a failure here is a programming error.
		panic(fmt.Sprintf("sift: schema for %T: %v", v, err))
	}
	return data
}

// sanitizeToolName normalizes a tool name for the function-calling API:
// lowercase with dashes and spaces replaced by underscores.
func sanitizeToolName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}
