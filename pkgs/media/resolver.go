// Package media turns uploaded blobs into opaque content references.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	"github.com/naveenchin/tt-backend/pkgs/metrics"
	log "github.com/sirupsen/logrus"
)

// Blob is one uploaded media file
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Resolver returns one reference per blob, in order
type Resolver interface {
	Resolve(ctx context.Context, blobs []Blob) ([]string, error)
}

// Store persists content and returns its content address
type Store interface {
	Add(ctx context.Context, data []byte) (string, error)
}

// JoinReferences builds the mediaIpfs value stored on chain
func JoinReferences(refs []string) string {
	return strings.Join(refs, ",")
}

// Digest returns the hex sha256 of data
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoreResolver stores blobs in a content-addressed store, skipping content
// it has already stored
type StoreResolver struct {
	store Store
	cache *Cache
	sink  events.Sink
}

var _ Resolver = (*StoreResolver)(nil)

// NewStoreResolver creates a resolver. cache may be nil.
func NewStoreResolver(store Store, cache *Cache) *StoreResolver {
	return &StoreResolver{store: store, cache: cache}
}

// WithSink reports every newly stored blob as a media_stored event
func (r *StoreResolver) WithSink(sink events.Sink) *StoreResolver {
	r.sink = sink
	return r
}

// Resolve stores each blob and returns its reference
func (r *StoreResolver) Resolve(ctx context.Context, blobs []Blob) ([]string, error) {
	refs := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		if len(blob.Data) == 0 {
			return nil, fault.Newf(fault.Validation, "resolve media", "media file %q is empty", blob.Name)
		}

		digest := Digest(blob.Data)
		if r.cache != nil {
			if ref, ok := r.cache.Lookup(ctx, digest); ok {
				refs = append(refs, ref)
				continue
			}
		}

		start := time.Now()
		ref, err := r.store.Add(ctx, blob.Data)
		if err != nil {
			metrics.MediaStored.WithLabelValues("error").Inc()
			return nil, fault.Classify("store media", err, fault.Connectivity)
		}
		metrics.MediaStored.WithLabelValues("stored").Inc()

		log.WithFields(log.Fields{
			"name":        blob.Name,
			"size":        len(blob.Data),
			"reference":   ref,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Stored media blob")
		r.reportStored(ctx, blob, ref)

		if r.cache != nil {
			r.cache.Remember(ctx, digest, ref)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (r *StoreResolver) reportStored(ctx context.Context, blob Blob, ref string) {
	if r.sink == nil {
		return
	}
	evt, err := events.NewEvent(events.EventMediaStored, events.SeverityInfo, "media", events.MediaStoredPayload{
		Name:        blob.Name,
		ContentType: blob.ContentType,
		Size:        len(blob.Data),
		Reference:   ref,
	})
	if err != nil {
		return
	}
	events.Emit(context.WithoutCancel(ctx), r.sink, evt)
}

// DigestResolver derives references from content hashes without storing
// anything. Used when no media store is configured.
type DigestResolver struct{}

var _ Resolver = DigestResolver{}

// Resolve returns "sha256-<hex>" for each blob
func (DigestResolver) Resolve(ctx context.Context, blobs []Blob) ([]string, error) {
	refs := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		if len(blob.Data) == 0 {
			return nil, fault.Newf(fault.Validation, "resolve media", "media file %q is empty", blob.Name)
		}
		refs = append(refs, "sha256-"+Digest(blob.Data))
	}
	return refs, nil
}
