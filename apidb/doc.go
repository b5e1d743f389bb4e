package apidb

import (
	"fmt"
	"strings"
)

// MarkdownDoc renders hover documentation for the function.
func (fn *Function) MarkdownDoc() string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**\n\n", fn.FullName)

	b.WriteString("```python\n")
	fmt.Fprintf(&b, "%s(%s)\n", fn.FullName, fn.formatParams())
	if fn.Returns.Type != "" {
		fmt.Fprintf(&b, "  -> %s\n", fn.Returns.Type)
	}
	b.WriteString("```\n\n")

	b.WriteString(fn.Description)
	if fn.LongDescription != "" {
		b.WriteString("\n\n")
		b.WriteString(fn.LongDescription)
	}
	b.WriteString("\n")

	if fn.Deprecated {
		b.WriteString("\n**Deprecated.**\n")
	}

	if len(fn.Params) > 0 {
		b.WriteString("\n**Parameters:**\n")
		for _, p := range fn.Params {
			optional := ""
			if p.Optional {
				optional = " (optional)"
			}
			def := ""
			if p.Default != "" {
				def = fmt.Sprintf(" = %s", p.Default)
			}
			fmt.Fprintf(&b, "- `%s`: %s%s%s\n", p.Name, p.Type, optional, def)
			if p.Description != "" {
				fmt.Fprintf(&b, "  %s\n", p.Description)
			}
		}
	}

	if fn.Returns.Type != "" {
		fmt.Fprintf(&b, "\n**Returns:** %s - %s\n", fn.Returns.Type, fn.Returns.Description)
	}

	if len(fn.Scope) > 0 {
		fmt.Fprintf(&b, "\n**Scope:** %s\n", strings.Join(fn.Scope, ", "))
	}

	if fn.DocsURL != "" {
		fmt.Fprintf(&b, "\n[Documentation](%s)\n", fn.DocsURL)
	}

	return b.String()
}

func (fn *Function) formatParams() string {
	var parts []string
	for _, p := range fn.Params {
		if p.Optional {
			def := p.Default
			if def == "" {
				def = "None"
			}
			parts = append(parts, fmt.Sprintf("%s=%s", p.Name, def))
		} else {
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// CompletionSnippet renders an insertion snippet with numbered
// placeholders for the required parameters.
func (fn *Function) CompletionSnippet() string {
	var parts []string
	i := 0
	for _, p := range fn.Params {
		if p.Optional {
			continue
		}
		i++
		parts = append(parts, fmt.Sprintf("${%d:%s}", i, p.Name))
	}
	return fmt.Sprintf("%s(%s)$0", fn.Name, strings.Join(parts, ", "))
}
