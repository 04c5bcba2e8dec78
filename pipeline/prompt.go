package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/route"
	"github.com/convomesh/convomesh/tool"
)

// Profile holds the agent-level conversational defaults that apply to every
// turn. Route-level declarations override these on name collision.
type Profile struct {
	Name         string
	Description  string
	Rules        map[string]string
	Prohibitions map[string]string
	Guidelines   []string
	Terms        map[string]string
	Tools        []string
}

// mergeNamed overlays route-level entries onto agent-level ones; the route
// wins on collision.
func mergeNamed(agent, routeLevel map[string]string) map[string]string {
	merged := make(map[string]string, len(agent)+len(routeLevel))
	for k, v := range agent {
		merged[k] = v
	}
	for k, v := range routeLevel {
		merged[k] = v
	}
	return merged
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildInstructions assembles the system prompt for a routed turn: persona,
// merged rules/prohibitions/guidelines/terms, the current step's ask, and the
// natural-language directives collected from condition evaluation.
func buildInstructions(
	profile Profile,
	r *route.Route,
	step *route.Step,
	directives []string,
	data map[string]any,
) string {
	var b strings.Builder

	writePersona(&b, profile)
	if r != nil {
		fmt.Fprintf(&b, "You are currently handling: %s.", r.Title())
		if d := r.Description(); d != "" {
			fmt.Fprintf(&b, " %s", d)
		}
		b.WriteString("\n\n")
	}

	var rules, prohibitions, terms map[string]string
	var guidelines []string
	if r != nil {
		rules = mergeNamed(profile.Rules, r.Rules())
		prohibitions = mergeNamed(profile.Prohibitions, r.Prohibitions())
		terms = mergeNamed(profile.Terms, r.Terms())
		guidelines = append(append([]string{}, profile.Guidelines...), r.Guidelines()...)
	} else {
		rules = profile.Rules
		prohibitions = profile.Prohibitions
		terms = profile.Terms
		guidelines = profile.Guidelines
	}

	writeNamedSection(&b, "Rules", rules)
	writeNamedSection(&b, "Never do the following", prohibitions)
	if len(guidelines) > 0 {
		b.WriteString("Guidelines:\n")
		for _, g := range guidelines {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}
	writeNamedSection(&b, "Terminology", terms)

	if len(directives) > 0 {
		b.WriteString("Context for this turn:\n")
		for _, d := range directives {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}

	if step != nil {
		if step.Description != "" {
			fmt.Fprintf(&b, "Current objective: %s\n", step.Description)
		}
		if len(step.Collect) > 0 {
			fmt.Fprintf(&b, "Try to collect these fields from the user: %s. "+
				"Return each value you learn in the matching response field; use null for anything still unknown.\n",
				strings.Join(step.Collect, ", "))
		}
		b.WriteString("\n")
	}

	writeCollected(&b, data)
	return strings.TrimRight(b.String(), "\n")
}

// buildCompletionInstructions assembles the wrap-up prompt used once a route
// completes, driven by the route's end-step configuration.
func buildCompletionInstructions(profile Profile, r *route.Route, data map[string]any) string {
	var b strings.Builder
	writePersona(&b, profile)
	fmt.Fprintf(&b, "The %s flow is now complete.", r.Title())
	if prompt := r.End().Prompt; prompt != "" {
		fmt.Fprintf(&b, " %s", prompt)
	} else {
		b.WriteString(" Summarize the outcome for the user.")
	}
	b.WriteString("\n\n")
	if fields := r.End().Fields; len(fields) > 0 {
		fmt.Fprintf(&b, "Mention these collected values: %s.\n\n", strings.Join(fields, ", "))
	}
	writeCollected(&b, data)
	return strings.TrimRight(b.String(), "\n")
}

// buildFallbackInstructions covers turns where no route matched: an unscoped,
// tool-free reply from global rules and guidelines only.
func buildFallbackInstructions(profile Profile) string {
	var b strings.Builder
	writePersona(&b, profile)
	writeNamedSection(&b, "Rules", profile.Rules)
	writeNamedSection(&b, "Never do the following", profile.Prohibitions)
	if len(profile.Guidelines) > 0 {
		b.WriteString("Guidelines:\n")
		for _, g := range profile.Guidelines {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writePersona(b *strings.Builder, profile Profile) {
	if profile.Name != "" {
		fmt.Fprintf(b, "You are %s.", profile.Name)
		if profile.Description != "" {
			fmt.Fprintf(b, " %s", profile.Description)
		}
		b.WriteString("\n\n")
	} else if profile.Description != "" {
		fmt.Fprintf(b, "%s\n\n", profile.Description)
	}
}

func writeNamedSection(b *strings.Builder, title string, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range sortedKeys(entries) {
		fmt.Fprintf(b, "- %s: %s\n", k, entries[k])
	}
	b.WriteString("\n")
}

func writeCollected(b *strings.Builder, data map[string]any) {
	if len(data) == 0 {
		return
	}
	b.WriteString("Already collected:\n")
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, data[k])
	}
	b.WriteString("\n")
}

// resolveTools computes the tool set visible to the model for one step:
// agent-level tools unioned with route-level tools, cut down to the step's
// allow-list, then filtered through the route's domain scope. Unroutable
// names have already been rejected at configuration time.
func resolveTools(
	registry *tool.Registry,
	profile Profile,
	r *route.Route,
	step *route.Step,
) []tool.Tool {
	if registry == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	add(profile.Tools)
	var scope tool.DomainScope
	if r != nil {
		add(r.Tools())
		scope = tool.DomainScope(r.DomainScope())
	}
	if step != nil && len(step.Tools) > 0 {
		allowed := names[:0]
		for _, n := range names {
			if step.AllowsTool(n) {
				allowed = append(allowed, n)
			}
		}
		names = allowed
	}
	return registry.Resolve(names, scope)
}

// toolDefinitions converts resolved tools into model-facing definitions.
func toolDefinitions(tools []tool.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
