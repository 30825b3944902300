package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	redislib "github.com/naveenchin/tt-backend/pkgs/redis"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ calls int }

func (f *failingSink) Publish(context.Context, *Event) error {
	f.calls++
	return errors.New("redis down")
}

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	a, err := NewEvent(EventStageSubmitted, SeverityInfo, "submission", SubmissionPayload{Nonce: 3})
	require.NoError(t, err)
	b, err := NewEvent(EventStageSubmitted, SeverityInfo, "submission", nil)
	require.NoError(t, err)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Nil(t, b.Payload)

	var payload SubmissionPayload
	require.NoError(t, json.Unmarshal(a.Payload, &payload))
	require.Equal(t, uint64(3), payload.Nonce)
}

func TestEventJSONShape(t *testing.T) {
	evt, err := NewEvent(EventSubmissionFailed, SeverityError, "submission", FailurePayload{Category: "insufficient_funds"})
	require.NoError(t, err)
	evt.ProductID = "P1"

	data, err := evt.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "submission_failed", decoded["type"])
	require.Equal(t, "P1", decoded["product_id"])
	require.NotContains(t, decoded, "event_id")
}

func TestEmitSwallowsErrors(t *testing.T) {
	sink := &failingSink{}
	evt, _ := NewEvent(EventMediaStored, SeverityInfo, "media", nil)

	Emit(context.Background(), sink, evt)
	Emit(context.Background(), nil, evt)
	Emit(context.Background(), Nop{}, evt)

	require.Equal(t, 1, sink.calls)
}

func TestNewPublisherRequiresClient(t *testing.T) {
	_, err := NewPublisher(nil, redislib.NewKeyBuilder("relay", ""), 0)
	require.Error(t, err)
}
