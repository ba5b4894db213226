// Package janitor reclaims orphaned upload blobs. Object-finalize events
// record every stored blob as pending; the registrar marks a blob
// committed when its document is created. Anything still uncommitted past
// the TTL was abandoned mid-upload (or its validation crashed before the
// compensating delete) and is swept.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/records"
)

const (
	// DefaultTTL is how long an uncommitted blob may linger before the
	// sweeper considers it abandoned. Generous: a slow mobile transfer of
	// a 20 MB file plus validation stays well inside it.
	DefaultTTL = 24 * time.Hour

	sweepConcurrency = 10
)

// StorageEvent is the subset of an object-finalize notification the
// janitor needs.
type StorageEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

type Janitor struct {
	pending records.PendingUploadStore
	blobs   blob.Store
	ttl     time.Duration
	log     *slog.Logger
}

func New(pending records.PendingUploadStore, blobs blob.Store, ttl time.Duration, log *slog.Logger) *Janitor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{pending: pending, blobs: blobs, ttl: ttl, log: log}
}

// RecordFinalize registers a freshly stored object as pending. Non-PDF
// objects (composed outputs, other buckets' noise routed to the same
// trigger) are ignored.
func (j *Janitor) RecordFinalize(ctx context.Context, ev StorageEvent, now time.Time) error {
	if ev.Name == "" {
		return fmt.Errorf("storage event has no object name")
	}
	if !strings.HasSuffix(ev.Name, ".pdf") {
		j.log.Debug("Ignoring non-PDF object.", "bucket", ev.Bucket, "name", ev.Name)
		return nil
	}
	if err := j.pending.MarkPending(ctx, ev.Name, ev.Bucket, now); err != nil {
		return fmt.Errorf("failed to record pending upload %s: %w", ev.Name, err)
	}
	j.log.Info("Recorded pending upload.", "bucket", ev.Bucket, "name", ev.Name)
	return nil
}

// Sweep deletes every uncommitted blob older than the TTL and removes its
// tracking record. Each orphan is handled independently; one failure does
// not stop the rest, but the first error is reported so the sweep retries.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-j.ttl)
	expired, err := j.pending.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired uploads: %w", err)
	}
	if len(expired) == 0 {
		j.log.Info("No orphaned uploads to sweep.")
		return 0, nil
	}
	j.log.Info("Sweeping orphaned uploads.", "count", len(expired), "cutoff", cutoff)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, orphan := range expired {
		g.Go(func() error {
			return j.reclaim(ctx, orphan.StorageRef)
		})
	}
	if err := g.Wait(); err != nil {
		return len(expired), err
	}
	j.log.Info("Sweep complete.", "swept", len(expired))
	return len(expired), nil
}

// reclaim deletes one orphan's blob, then its tracking record. The record
// only goes once the blob is confirmed gone, so a half-finished sweep is
// retried rather than leaking the blob.
func (j *Janitor) reclaim(ctx context.Context, ref string) error {
	if err := j.blobs.Delete(ctx, ref); err != nil {
		j.log.Warn("Failed to delete orphaned blob; keeping its record for the next sweep.", "storageRef", ref, "error", err)
		return fmt.Errorf("failed to delete orphaned blob %s: %w", ref, err)
	}
	if err := j.pending.Remove(ctx, ref); err != nil {
		return fmt.Errorf("failed to remove pending record %s: %w", ref, err)
	}
	j.log.Info("Reclaimed orphaned upload.", "storageRef", ref)
	return nil
}
