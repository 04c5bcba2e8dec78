package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalkFrom_DeterministicOrder(t *testing.T) {
	r := bookingRoute(t)

	var ids []string
	for _, s := range r.WalkFrom("ask-hotel") {
		ids = append(ids, s.ID)
	}
	// Depth-first following edge declaration order, each step once.
	assert.Equal(t, []string{"ask-hotel", "ask-dates", "confirm", "no-availability"}, ids)
}

func TestWalkFrom_UnknownStart(t *testing.T) {
	r := bookingRoute(t)
	assert.Nil(t, r.WalkFrom("missing"))
}

func TestWalkFrom_HandlesCycles(t *testing.T) {
	r, err := NewBuilder("loop", "Loop").
		AddStep(&Step{ID: "a", Next: []string{"b"}}).
		AddStep(&Step{ID: "b", Next: []string{"a", EndOfRoute}}).
		Build()
	assert.NoError(t, err)

	var ids []string
	for _, s := range r.WalkFrom("a") {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestSuccessors(t *testing.T) {
	r := bookingRoute(t)

	var ids []string
	for _, s := range r.Successors("ask-dates") {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"confirm", "no-availability"}, ids)

	// Terminal edges are not successors.
	assert.Empty(t, r.Successors("confirm"))
	assert.Nil(t, r.Successors("missing"))
}
