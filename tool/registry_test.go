package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convomesh/convomesh/core"
)

func nopTool(name, domain string) *FunctionTool {
	return NewFunctionTool(
		name,
		"test tool",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil },
		WithDomain(domain),
	)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(nopTool("a", "booking")))
	assert.Error(t, r.Register(nopTool("a", "booking")), "duplicate names rejected")
	assert.Error(t, r.Register(nil))

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", got.Name())
	assert.Equal(t, "booking", r.Domain("a"))

	_, ok = r.Get("b")
	assert.False(t, ok)
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(nopTool("zeta", ""), nopTool("alpha", ""), nopTool("mid", ""))
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
	assert.Equal(t, map[string]bool{"alpha": true, "mid": true, "zeta": true}, r.NameSet())
}

func TestDomainScope_Allows(t *testing.T) {
	var unrestricted DomainScope
	assert.True(t, unrestricted.Allows("payments"))

	scope := DomainScope{"booking"}
	assert.True(t, scope.Allows("booking"))
	assert.True(t, scope.Allows(""), "untagged tools are always in scope")
	assert.False(t, scope.Allows("payments"))
}

// A payment tool inside a support-only route must never be resolvable,
// independent of what the model is shown.
func TestRegistry_ResolveWithScope(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		nopTool("create_booking", "booking"),
		nopTool("charge_card", "payments"),
		nopTool("log_note", ""),
	)

	tools := r.Resolve([]string{"create_booking", "charge_card", "log_note", "missing"}, DomainScope{"booking"})
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"create_booking", "log_note"}, names)
}
