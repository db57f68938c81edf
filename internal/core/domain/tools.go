package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ToolExecutor is the function signature for tool execution.
type ToolExecutor func(ctx context.Context, args map[string]any) (any, error)

// Tool represents an executable capability available to the agent.
// Args is an object schema validated before every invocation.
type Tool struct {
	Name        string
	Description string
	Args        *openapi3.Schema
	Execute     ToolExecutor
}

// ToolRegistry holds the capability set for a run. Registration happens
// once at startup; lookups during a run are read-only.
type ToolRegistry struct {
	tools map[string]*Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Schemas are checked here so a malformed tool
// definition fails at startup rather than on first call.
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s has no executor", tool.Name)
	}
	if tool.Args == nil {
		tool.Args = openapi3.NewObjectSchema()
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get returns a tool by exact name. There is no fuzzy correction:
// a hallucinated name must surface as an observation the model can react to.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools in name order.
func (r *ToolRegistry) List() []*Tool {
	tools := make([]*Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// FormatForPrompt generates a compact tool listing for the reasoning
// prompt: name: description | params: {name:type, ...} | required: ...
func (r *ToolRegistry) FormatForPrompt() string {
	var sb strings.Builder
	sb.WriteString("Available Tools:\n")
	for _, tool := range r.List() {
		sb.WriteString("- ")
		sb.WriteString(tool.Name)
		sb.WriteString(": ")
		sb.WriteString(tool.Description)

		if len(tool.Args.Properties) > 0 {
			props := make([]string, 0, len(tool.Args.Properties))
			for pName, pRef := range tool.Args.Properties {
				pType := "any"
				if pRef.Value != nil && pRef.Value.Type != nil && len(*pRef.Value.Type) > 0 {
					pType = (*pRef.Value.Type)[0]
				}
				props = append(props, pName+":"+pType)
			}
			sort.Strings(props)
			sb.WriteString(" | params: {" + strings.Join(props, ", ") + "}")
		}
		if len(tool.Args.Required) > 0 {
			sb.WriteString(" | required: " + strings.Join(tool.Args.Required, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
