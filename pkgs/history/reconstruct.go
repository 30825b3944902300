// Package history rebuilds a product's stage history from tracker reads.
package history

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/naveenchin/tt-backend/pkgs/contract"
	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	"github.com/naveenchin/tt-backend/pkgs/fields"
	"github.com/naveenchin/tt-backend/pkgs/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel per-event reads
const DefaultConcurrency = 8

// Event is one recorded stage. Timestamp is in milliseconds.
type Event struct {
	ProductID string            `json:"productId"`
	EventID   string            `json:"eventId"`
	Fields    map[string]string `json:"fields"`
	Comments  string            `json:"comments"`
	MediaRef  string            `json:"mediaRef"`
	Timestamp int64             `json:"timestamp"`
	Submitter string            `json:"submitter"`
}

// History is a product's stages in ascending timestamp order
type History struct {
	Stages  []Event        `json:"stages"`
	Skipped []*fault.Error `json:"-"`
}

// Reader is the read side of the tracker contract
type Reader interface {
	StageIDs(ctx context.Context, productID string) ([]string, error)
	StageData(ctx context.Context, productID, eventID string) ([]string, error)
	StageMeta(ctx context.Context, productID, eventID string) (*contract.StageMeta, error)
}

// Reconstructor assembles histories from a Reader
type Reconstructor struct {
	reader      Reader
	concurrency int
	sink        events.Sink
}

// NewReconstructor creates a reconstructor. sink may be nil.
func NewReconstructor(reader Reader, concurrency int, sink events.Sink) *Reconstructor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Reconstructor{reader: reader, concurrency: concurrency, sink: sink}
}

type fetchResult struct {
	event *Event
	err   *fault.Error
}

// Reconstruct lists the product's events and reads each one. Only a failed
// listing is fatal; events whose reads fail are left out and reported in
// Skipped.
func (r *Reconstructor) Reconstruct(ctx context.Context, productID string) (*History, error) {
	start := time.Now()

	if strings.TrimSpace(productID) == "" {
		metrics.HistoryRequests.WithLabelValues("rejected").Inc()
		return nil, fault.New(fault.Validation, "reconstruct history", "productId is required")
	}

	ids, err := r.reader.StageIDs(ctx, productID)
	if err != nil {
		metrics.HistoryRequests.WithLabelValues("error").Inc()
		return nil, fault.Wrap(fault.Read, "list stage ids", err)
	}

	results := make([]fetchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			evt, err := r.fetch(gctx, productID, id)
			if err != nil {
				results[i].err = fault.Newf(fault.PartialFetch, "fetch stage", "event %s: %v", id, err)
				return nil
			}
			results[i].event = evt
			return nil
		})
	}
	// Workers never return errors; failures are collected per event
	_ = g.Wait()

	hist := &History{Stages: make([]Event, 0, len(ids))}
	skippedIDs := make([]string, 0)
	for i, res := range results {
		if res.err != nil {
			hist.Skipped = append(hist.Skipped, res.err)
			skippedIDs = append(skippedIDs, ids[i])
			log.WithFields(log.Fields{
				"product_id": productID,
				"event_id":   ids[i],
			}).WithError(res.err.Err).Warn("Skipping stage that could not be read")
			continue
		}
		hist.Stages = append(hist.Stages, *res.event)
	}

	sort.SliceStable(hist.Stages, func(a, b int) bool {
		return hist.Stages[a].Timestamp < hist.Stages[b].Timestamp
	})

	outcome := "complete"
	if len(hist.Skipped) > 0 {
		outcome = "partial"
		metrics.HistorySkippedEvents.Add(float64(len(hist.Skipped)))
		r.reportDegraded(ctx, productID, len(hist.Stages), skippedIDs)
	}
	metrics.HistoryRequests.WithLabelValues(outcome).Inc()

	log.WithFields(log.Fields{
		"product_id":  productID,
		"listed":      len(ids),
		"returned":    len(hist.Stages),
		"skipped":     len(hist.Skipped),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Reconstructed stage history")

	return hist, nil
}

func (r *Reconstructor) fetch(ctx context.Context, productID, eventID string) (*Event, error) {
	data, err := r.reader.StageData(ctx, productID, eventID)
	if err != nil {
		return nil, err
	}
	meta, err := r.reader.StageMeta(ctx, productID, eventID)
	if err != nil {
		return nil, err
	}
	if meta.Timestamp > contract.MaxTimestamp {
		return nil, fault.Newf(fault.Read, "read stage meta", "timestamp %d out of range", meta.Timestamp)
	}

	return &Event{
		ProductID: productID,
		EventID:   eventID,
		Fields:    fields.Decode(data),
		Comments:  meta.Comments,
		MediaRef:  meta.MediaRef,
		Timestamp: int64(meta.Timestamp) * 1000,
		Submitter: meta.Submitter.Hex(),
	}, nil
}

func (r *Reconstructor) reportDegraded(ctx context.Context, productID string, returned int, skipped []string) {
	if r.sink == nil {
		return
	}
	evt, err := events.NewEvent(events.EventHistoryDegraded, events.SeverityWarning, "history",
		events.DegradedHistoryPayload{Returned: returned, Skipped: skipped})
	if err != nil {
		return
	}
	evt.ProductID = productID
	events.Emit(context.WithoutCancel(ctx), r.sink, evt)
}
