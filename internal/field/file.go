package field

import (
	"context"
	"strings"

	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
)

// FileAdapter backs file questions. Attach runs recognition when the
// question's file mode asks for it; the recognized text is a suggestion
// the operator can edit or replace before the answer is submitted.
type FileAdapter struct {
	q        flow.Question
	verifier Verifier

	attachment *flow.Attachment
	recognized string
}

func (a *FileAdapter) Question() flow.Question { return a.q }

// Attach stores the file and, when the question wants OCR, runs
// recognition. Recognition failure degrades to "no auto-fill": the file
// stays attached and the result's message explains what happened.
func (a *FileAdapter) Attach(ctx context.Context, att flow.Attachment) ocr.Result {
	a.attachment = &att

	if !a.q.WantsOCR() {
		return ocr.Result{Valid: true}
	}
	if a.verifier == nil {
		return ocr.Result{Valid: false, Message: "verification not available"}
	}

	res := a.verifier.ProcessAttachment(ctx, a.q.ID, att)
	if res.Valid {
		a.recognized = res.RecognizedText
	}
	return res
}

// RecognizedText returns the last successful recognition, if any.
func (a *FileAdapter) RecognizedText() string { return a.recognized }

// Normalize builds the answer from the attachment plus the final text:
// operator input wins over the recognized suggestion.
func (a *FileAdapter) Normalize(input string) (flow.Answer, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		value = a.recognized
	}

	ans := flow.Answer{Value: value}
	if a.attachment != nil {
		ans.Attachments = []flow.Attachment{*a.attachment}
	}
	if a.q.Required && ans.Empty() {
		return flow.Answer{}, &flow.ValidationError{QuestionID: a.q.ID, Reason: "a file is required"}
	}
	return ans, nil
}
