package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naveenchin/tt-backend/pkgs/contract"
	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	"github.com/stretchr/testify/require"
)

type stage struct {
	data []string
	meta *contract.StageMeta
}

type fakeReader struct {
	ids         []string
	idsErr      error
	stages      map[string]stage
	failing     map[string]bool
	failingMeta map[string]bool
}

func (f *fakeReader) StageIDs(ctx context.Context, productID string) ([]string, error) {
	return f.ids, f.idsErr
}

func (f *fakeReader) StageData(ctx context.Context, productID, eventID string) ([]string, error) {
	if f.failing[eventID] {
		return nil, fault.New(fault.Read, "call getStageData", "execution reverted")
	}
	return f.stages[eventID].data, nil
}

func (f *fakeReader) StageMeta(ctx context.Context, productID, eventID string) (*contract.StageMeta, error) {
	if f.failingMeta[eventID] {
		return nil, fault.New(fault.Read, "call getStageMeta", "header not found")
	}
	return f.stages[eventID].meta, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (c *captureSink) Publish(ctx context.Context, evt *events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func stageAt(ts uint64, kv ...string) stage {
	return stage{
		data: kv,
		meta: &contract.StageMeta{
			Comments:  "c",
			MediaRef:  "",
			Timestamp: ts,
			Submitter: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		},
	}
}

func eventIDs(h *History) []string {
	out := make([]string, 0, len(h.Stages))
	for _, s := range h.Stages {
		out = append(out, s.EventID)
	}
	return out
}

func TestReconstructSortsByTimestamp(t *testing.T) {
	reader := &fakeReader{
		ids: []string{"a", "b", "c"},
		stages: map[string]stage{
			"a": stageAt(30),
			"b": stageAt(10),
			"c": stageAt(20),
		},
	}

	h, err := NewReconstructor(reader, 2, nil).Reconstruct(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a"}, eventIDs(h))
	require.Equal(t, []int64{10000, 20000, 30000}, []int64{h.Stages[0].Timestamp, h.Stages[1].Timestamp, h.Stages[2].Timestamp})
}

func TestReconstructStableTies(t *testing.T) {
	reader := &fakeReader{
		ids: []string{"first", "second", "early", "third"},
		stages: map[string]stage{
			"first":  stageAt(50),
			"second": stageAt(50),
			"early":  stageAt(5),
			"third":  stageAt(50),
		},
	}

	h, err := NewReconstructor(reader, 4, nil).Reconstruct(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"early", "first", "second", "third"}, eventIDs(h))
}

func TestReconstructEmpty(t *testing.T) {
	h, err := NewReconstructor(&fakeReader{}, 0, nil).Reconstruct(context.Background(), "P-none")
	require.NoError(t, err)
	require.Empty(t, h.Stages)
	require.Empty(t, h.Skipped)

	data, err := json.Marshal(h)
	require.NoError(t, err)
	require.JSONEq(t, `{"stages":[]}`, string(data))
}

func TestReconstructPartialFailure(t *testing.T) {
	reader := &fakeReader{
		ids: []string{"A", "B", "C"},
		stages: map[string]stage{
			"A": stageAt(1, "k||v"),
			"C": stageAt(3),
		},
		failing: map[string]bool{"B": true},
	}
	sink := &captureSink{}

	h, err := NewReconstructor(reader, 1, sink).Reconstruct(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, eventIDs(h))
	require.Len(t, h.Skipped, 1)
	require.Equal(t, fault.PartialFetch, h.Skipped[0].Kind)
	require.Contains(t, h.Skipped[0].Error(), "B")
	require.Equal(t, map[string]string{"k": "v"}, h.Stages[0].Fields)

	require.Len(t, sink.events, 1)
	require.Equal(t, events.EventHistoryDegraded, sink.events[0].Type)
}

func TestReconstructMetaFailure(t *testing.T) {
	reader := &fakeReader{
		ids: []string{"A", "B", "C"},
		stages: map[string]stage{
			"A": stageAt(1),
			"B": stageAt(2, "k||v"),
			"C": stageAt(3),
		},
		failingMeta: map[string]bool{"B": true},
	}
	sink := &captureSink{}

	h, err := NewReconstructor(reader, 3, sink).Reconstruct(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, eventIDs(h))
	require.Len(t, h.Skipped, 1)
	require.Equal(t, fault.PartialFetch, h.Skipped[0].Kind)
	require.Contains(t, h.Skipped[0].Error(), "header not found")
	require.Len(t, sink.events, 1)
}

func TestReconstructSkipsOutOfRangeTimestamp(t *testing.T) {
	reader := &fakeReader{
		ids: []string{"real", "corrupt", "later"},
		stages: map[string]stage{
			"real":    stageAt(100),
			"corrupt": stageAt(1 << 62),
			"later":   stageAt(200),
		},
	}

	h, err := NewReconstructor(reader, 2, nil).Reconstruct(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"real", "later"}, eventIDs(h))
	require.Len(t, h.Skipped, 1)
	require.Contains(t, h.Skipped[0].Error(), "corrupt")
}

func TestReconstructListingFailureIsFatal(t *testing.T) {
	reader := &fakeReader{idsErr: errors.New("connection refused")}

	_, err := NewReconstructor(reader, 1, nil).Reconstruct(context.Background(), "P1")
	require.Error(t, err)
	require.Equal(t, fault.Read, fault.KindOf(err))
}

func TestReconstructRequiresProduct(t *testing.T) {
	reader := &fakeReader{}
	_, err := NewReconstructor(reader, 1, nil).Reconstruct(context.Background(), " ")
	require.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestEventJSONKeys(t *testing.T) {
	data, err := json.Marshal(Event{ProductID: "P", EventID: "E", Fields: map[string]string{}, Timestamp: 1000})
	require.NoError(t, err)
	require.JSONEq(t, `{"productId":"P","eventId":"E","fields":{},"comments":"","mediaRef":"","timestamp":1000,"submitter":""}`, string(data))
}
