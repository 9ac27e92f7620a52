package ocr

import (
	"context"
	"log/slog"

	"github.com/garitadev/garita/internal/flow"
)

// Result is the outcome of processing one attachment. A failed recognition
// is a Result with Valid=false, never an error: the operator can always
// keep the file and type the value by hand.
type Result struct {
	RecognizedText string `json:"recognized_text"`
	Valid          bool   `json:"valid"`
	Message        string `json:"message,omitempty"`
}

// Recognizer is the remote verification surface the coordinator uses for
// image attachments.
type Recognizer interface {
	Verify(ctx context.Context, questionID string, att flow.Attachment) (VerifyResponse, error)
}

// Coordinator sequences attach, recognize, and result normalization for
// file-bearing questions, independent of the final answer submission.
type Coordinator struct {
	remote Recognizer
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator. remote may be nil, in which case
// image recognition degrades to "no auto-fill".
func NewCoordinator(remote Recognizer) *Coordinator {
	return &Coordinator{remote: remote, logger: slog.Default()}
}

// ProcessAttachment recognizes text in the attachment. It never fails:
// every failure mode becomes a Result with Valid=false and a readable
// message, and the caller decides whether the operator may proceed with an
// unrecognized value.
func (c *Coordinator) ProcessAttachment(ctx context.Context, questionID string, att flow.Attachment) Result {
	if len(att.Content) == 0 {
		return Result{Valid: false, Message: "attachment is empty"}
	}

	if IsPDF(att.ContentType, att.Content) {
		text, err := ExtractPDFText(att.Content)
		if err != nil {
			c.logger.Debug("pdf extraction failed", "question_id", questionID, "file", att.Filename, "error", err)
			return Result{Valid: false, Message: "could not read text from PDF"}
		}
		if text == "" {
			return Result{Valid: false, Message: "PDF has no embedded text"}
		}
		return Result{RecognizedText: text, Valid: true}
	}

	if c.remote == nil {
		return Result{Valid: false, Message: "verification service not configured"}
	}

	resp, err := c.remote.Verify(ctx, questionID, att)
	if err != nil {
		c.logger.Debug("remote verification failed", "question_id", questionID, "file", att.Filename, "error", err)
		return Result{Valid: false, Message: "verification unavailable, enter the value manually"}
	}
	return Result{RecognizedText: resp.RecognizedText, Valid: resp.Valid, Message: resp.Message}
}
