// Package indexer drains the attachment_index job queue: after a submission
// is finalized, the text of its document attachments is extracted and stored
// next to the attachment so records can be searched later.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garitadev/garita/internal/ocr"
	"github.com/garitadev/garita/internal/storage"
)

// JobStore abstracts the queue and attachment operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	ListAttachments(submissionID string) ([]storage.AttachmentRecord, error)
	UpdateAttachmentText(id, text string) error
}

// Worker processes attachment_index jobs from the SQLite job queue.
type Worker struct {
	store       JobStore
	poll        time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:       store,
		poll:        pollInterval,
		concurrency: 4,
		logger:      slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single attachment_index job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobTypeAttachmentIndex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type indexPayload struct {
	SubmissionID string `json:"submission_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.SubmissionID == "" {
		return fmt.Errorf("payload missing submission_id")
	}

	attachments, err := w.store.ListAttachments(payload.SubmissionID)
	if err != nil {
		return fmt.Errorf("listing attachments of %s: %w", payload.SubmissionID, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, att := range attachments {
		if att.ExtractedText != "" {
			continue
		}
		if !ocr.IsPDF(att.ContentType, att.Content) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := ocr.ExtractPDFText(att.Content)
			if err != nil {
				// A single unreadable document should not poison the whole
				// submission; leave it unindexed.
				w.logger.Debug("pdf extraction failed", "attachment_id", att.ID, "error", err)
				return nil
			}
			if text == "" {
				return nil
			}
			if err := w.store.UpdateAttachmentText(att.ID, text); err != nil {
				return fmt.Errorf("storing text of attachment %s: %w", att.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
