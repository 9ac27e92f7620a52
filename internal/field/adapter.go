// Package field maps raw operator input to normalized answer payloads, one
// adapter per question type. Adapters never mutate engine state; only an
// explicit submit does.
package field

import (
	"context"
	"strings"
	"time"

	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
)

// Adapter produces a normalized answer from operator input.
type Adapter interface {
	Question() flow.Question
	Normalize(input string) (flow.Answer, error)
}

// Searcher is the actor-catalog lookup collaborator.
type Searcher interface {
	Search(ctx context.Context, query, kind string) ([]Actor, error)
}

// Verifier recognizes text in attachments. Satisfied by ocr.Coordinator.
type Verifier interface {
	ProcessAttachment(ctx context.Context, questionID string, att flow.Attachment) ocr.Result
}

// Deps carries the collaborators specialized adapters need.
type Deps struct {
	Actors Searcher
	OCR    Verifier
	Now    func() time.Time
}

// ForQuestion selects the adapter for a question based on its type and
// semantic tag. Callers that need adapter-specific behavior (search,
// attach) type-assert the returned value.
func ForQuestion(q flow.Question, deps Deps) Adapter {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	switch {
	case q.Type == flow.QuestionChoice:
		return &ChoiceAdapter{q: q}
	case q.Type == flow.QuestionFile:
		return &FileAdapter{q: q, verifier: deps.OCR}
	case strings.HasPrefix(q.Tag, actorTagPrefix):
		return &ActorAdapter{q: q, search: deps.Actors, kind: ActorKindForTag(q.Tag)}
	default:
		return &Scalar{q: q, now: deps.Now}
	}
}
