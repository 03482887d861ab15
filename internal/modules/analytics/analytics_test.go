package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/aiassist/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{}

func (failingSink) Insert(context.Context, *models.AnalyticsEvent) error {
	return errors.New("sink down")
}

func (failingSink) Recent(context.Context, string, int) ([]models.AnalyticsEvent, error) {
	return nil, errors.New("sink down")
}

func TestTracker_RecordsEvents(t *testing.T) {
	sink := NewMemorySink(3)
	tr := NewTracker(sink, zap.NewNop())

	tr.Track(context.Background(), "u1", models.EventLogin, nil)
	tr.Track(context.Background(), "u2", models.EventLogin, nil)
	tr.Track(context.Background(), "u1", models.EventAIRequest, map[string]interface{}{"messageLength": 5})

	events, err := tr.Recent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventAIRequest, events[0].EventType)
	assert.Equal(t, 5, events[0].Properties["messageLength"])
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())

	tr.Track(context.Background(), "u3", models.EventLogout, nil)
	all, err := tr.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTracker_SwallowsSinkErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := NewTracker(failingSink{}, zap.New(core))

	assert.NotPanics(t, func() {
		tr.Track(context.Background(), "u1", models.EventAIError, nil)
	})
	assert.Equal(t, 1, logs.FilterMessage("analytics tracking failed").Len())
}

func TestTracker_CanceledRequestStillTracks(t *testing.T) {
	sink := NewMemorySink(10)
	tr := NewTracker(sink, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr.Track(ctx, "u1", models.EventAIResponse, nil)
	events, _ := tr.Recent(context.Background(), "", 10)
	assert.Len(t, events, 1)
}

func TestTracker_Disabled(t *testing.T) {
	tr := NewTracker(nil, nil)
	assert.False(t, tr.Enabled())
	tr.Track(context.Background(), "u1", models.EventLogin, nil)
	events, err := tr.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
