package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplatePlainTextFastPath(t *testing.T) {
	out, err := RenderTemplate("no markers here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestRenderTemplateSubstitution(t *testing.T) {
	out, err := RenderTemplate("The {{.route}} flow has completed.", map[string]any{"route": "book-hotel"})
	require.NoError(t, err)
	assert.Equal(t, "The book-hotel flow has completed.", out)
}

func TestRenderTemplateFuncs(t *testing.T) {
	state := map[string]any{"name": "ritz", "items": []any{"a", "b"}}

	out, err := RenderTemplate(`{{upper .name}} {{join "," .items}}`, state)
	require.NoError(t, err)
	assert.Equal(t, "RITZ a,b", out)

	out, err = RenderTemplate(`{{default "guest" .missing}}`, state)
	require.NoError(t, err)
	assert.Equal(t, "guest", out)
}

func TestRenderTemplateParseError(t *testing.T) {
	_, err := RenderTemplate("{{.unclosed", nil)
	assert.Error(t, err)
}
