package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("sess-1")

	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.NotNil(t, s.Data)
	assert.Nil(t, s.CurrentRoute)
	assert.Nil(t, s.PendingTransition)
	assert.False(t, s.Created.IsZero())
}

func TestSessionDataAccess(t *testing.T) {
	s := NewSession("sess-1")

	_, ok := s.GetData("hotel_name")
	assert.False(t, ok)

	s.SetData("hotel_name", "Grand Budapest")
	v, ok := s.GetData("hotel_name")
	require.True(t, ok)
	assert.Equal(t, "Grand Budapest", v)

	s.MergeData(map[string]any{"hotel_name": "Ritz", "guests": 2})
	v, _ = s.GetData("hotel_name")
	assert.Equal(t, "Ritz", v)

	assert.True(t, s.HasAll([]string{"hotel_name", "guests"}))
	assert.False(t, s.HasAll([]string{"hotel_name", "check_in"}))
	assert.True(t, s.HasAll(nil))
}

func TestSessionRouteLifecycle(t *testing.T) {
	s := NewSession("sess-1")

	s.EnterRoute(RouteRef{ID: "book-hotel", Title: "Book Hotel"})
	s.EnterStep(StepRef{ID: "ask-hotel"})
	require.NotNil(t, s.CurrentRoute)
	require.NotNil(t, s.CurrentStep)

	// Entering a route resets the step position.
	s.EnterRoute(RouteRef{ID: "collect-feedback"})
	assert.Nil(t, s.CurrentStep)

	s.LeaveRoute()
	assert.Nil(t, s.CurrentRoute)
	assert.Nil(t, s.CurrentStep)
}

func TestConsumePendingTransitionClears(t *testing.T) {
	s := NewSession("sess-1")
	assert.Nil(t, s.ConsumePendingTransition())

	s.SetPendingTransition(PendingTransition{
		TargetRouteID: "collect-feedback",
		Condition:     "booking finished",
		Reason:        ReasonRouteComplete,
	})

	pt := s.ConsumePendingTransition()
	require.NotNil(t, pt)
	assert.Equal(t, "collect-feedback", pt.TargetRouteID)
	assert.Equal(t, ReasonRouteComplete, pt.Reason)

	// Consuming is one-shot.
	assert.Nil(t, s.ConsumePendingTransition())
	assert.Nil(t, s.PendingTransition)
}

func TestSessionCloneIsIndependent(t *testing.T) {
	s := NewSession("sess-1")
	s.SetData("hotel_name", "Ritz")
	s.EnterRoute(RouteRef{ID: "book-hotel"})
	s.EnterStep(StepRef{ID: "ask-dates"})
	s.SetPendingTransition(PendingTransition{TargetRouteID: "collect-feedback", Reason: ReasonToolRequest})

	clone := s.Clone()
	clone.SetData("hotel_name", "Savoy")
	clone.SetData("guests", 4)
	clone.CurrentRoute.ID = "other"
	clone.CurrentStep.ID = "other-step"
	clone.PendingTransition.TargetRouteID = "other"

	v, _ := s.GetData("hotel_name")
	assert.Equal(t, "Ritz", v)
	_, ok := s.GetData("guests")
	assert.False(t, ok)
	assert.Equal(t, "book-hotel", s.CurrentRoute.ID)
	assert.Equal(t, "ask-dates", s.CurrentStep.ID)
	assert.Equal(t, "collect-feedback", s.PendingTransition.TargetRouteID)
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	s := NewSession("sess-1")
	s.UserID = "user-9"
	s.MessageCount = 3
	s.SetData("guests", float64(2))
	s.EnterRoute(RouteRef{ID: "book-hotel", Title: "Book Hotel"})
	s.EnterStep(StepRef{ID: "confirm", Description: "Confirm the booking."})
	s.SetPendingTransition(PendingTransition{TargetRouteID: "collect-feedback", Reason: ReasonRouteComplete})

	raw, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := SessionFromSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.UserID, restored.UserID)
	assert.Equal(t, s.Status, restored.Status)
	assert.Equal(t, s.MessageCount, restored.MessageCount)
	assert.Equal(t, s.Data, restored.Data)
	assert.Equal(t, s.CurrentRoute, restored.CurrentRoute)
	assert.Equal(t, s.CurrentStep, restored.CurrentStep)
	assert.Equal(t, s.PendingTransition, restored.PendingTransition)
}

func TestSessionFromSnapshotNilData(t *testing.T) {
	restored, err := SessionFromSnapshot([]byte(`{"id":"sess-2","status":"active"}`))
	require.NoError(t, err)
	assert.NotNil(t, restored.Data)

	_, err = SessionFromSnapshot([]byte(`not json`))
	assert.Error(t, err)
}
