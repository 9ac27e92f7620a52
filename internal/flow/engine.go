package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// State is the engine's lifecycle position.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateAwaitingInput  State = "awaiting_input"
	StateSubmitting     State = "submitting"
	StateShowingSummary State = "showing_summary"
	StateFinalized      State = "finalized"
)

// Collaborator is the external submission service the engine drives. The
// HTTP implementation lives with the presentation layer; tests supply mocks.
type Collaborator interface {
	CreateSubmission(ctx context.Context, questionnaireID, phase string) (string, error)
	FirstQuestion(ctx context.Context, questionnaireID string) (Question, error)
	// SaveAnswer persists one answer and advances. It returns the next
	// question, or terminal=true when the questionnaire is complete.
	SaveAnswer(ctx context.Context, submissionID, questionID string, ans Answer) (next *Question, terminal bool, err error)
	Finalize(ctx context.Context, submissionID string) error
}

// DraftStore persists in-progress drafts. Implementations swallow their own
// I/O failures; drafting must never interrupt the flow.
type DraftStore interface {
	Load(key string) *Draft
	Save(key string, d *Draft)
	Clear(key string)
}

// Engine holds the ordered item list for one submission session and
// serializes all answer traffic to the collaborator.
type Engine struct {
	collab Collaborator
	drafts DraftStore
	logger *slog.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	questionnaireID string
	submissionID    string
	phase           string
	items           []Item
	current         int
}

// NewEngine creates an engine over the given collaborator and draft store.
func NewEngine(collab Collaborator, drafts DraftStore) *Engine {
	return &Engine{
		collab: collab,
		drafts: drafts,
		logger: slog.Default(),
		now:    time.Now,
		state:  StateUninitialized,
	}
}

// InitResult describes the outcome of Initialize.
type InitResult struct {
	SubmissionID string
	Resumed      bool
	State        State
	Question     *Question // current question, nil when the restored draft is complete
}

// Initialize binds the engine to a submission, creating one when
// submissionID is empty, and restores a compatible draft when resume is
// true. With no usable draft the first question is fetched from the
// collaborator. Callers decide resume from the draft-availability signal
// (DraftStore.Load before initializing).
func (e *Engine) Initialize(ctx context.Context, questionnaireID, submissionID, phase string, resume bool) (*InitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialized {
		return nil, fmt.Errorf("initialize: %w", ErrInvalidState)
	}

	if submissionID == "" {
		id, err := e.collab.CreateSubmission(ctx, questionnaireID, phase)
		if err != nil {
			return nil, &CollaboratorError{Op: "creating submission", Err: err}
		}
		submissionID = id
	}

	e.questionnaireID = questionnaireID
	e.submissionID = submissionID
	e.phase = phase
	key := DraftKey(questionnaireID, submissionID)

	if resume {
		if d := e.drafts.Load(key); d != nil && d.QuestionnaireID == questionnaireID && d.SubmissionID == submissionID && len(d.Items) > 0 {
			e.items = d.Items
			e.current = d.Current
			if e.current < 0 || e.current >= len(e.items) {
				e.current = len(e.items) - 1
			}
			// A mid-flight crash leaves no "saving" item in a draft, but an
			// old snapshot might; treat it as unsaved.
			for i := range e.items {
				if e.items[i].Status == ItemSaving {
					e.items[i].Status = ItemPending
				}
			}
			if d.Completed {
				e.state = StateShowingSummary
				return &InitResult{SubmissionID: submissionID, Resumed: true, State: e.state}, nil
			}
			e.state = StateAwaitingInput
			q := e.items[e.current].Question
			return &InitResult{SubmissionID: submissionID, Resumed: true, State: e.state, Question: &q}, nil
		}
	} else {
		e.drafts.Clear(key)
	}

	q, err := e.collab.FirstQuestion(ctx, questionnaireID)
	if err != nil {
		return nil, &CollaboratorError{Op: "fetching first question", Err: err}
	}

	e.items = []Item{{Question: q, Status: ItemPending}}
	e.current = 0
	e.state = StateAwaitingInput
	return &InitResult{SubmissionID: submissionID, State: e.state, Question: &q}, nil
}

// SubmitResult describes a successful SubmitCurrent.
type SubmitResult struct {
	Terminal bool
	Next     *Question
	// Truncated is the number of later items discarded because an earlier
	// answer was changed.
	Truncated int
}

// SubmitCurrent validates the answer for the current question and sends it
// to the collaborator. At most one call is in flight per engine; a
// concurrent call fails fast with ErrSubmitInFlight. The draft is persisted
// only after the collaborator call resolves, never mid-flight.
func (e *Engine) SubmitCurrent(ctx context.Context, ans Answer) (*SubmitResult, error) {
	e.mu.Lock()
	if e.state == StateSubmitting {
		e.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if e.state != StateAwaitingInput {
		e.mu.Unlock()
		return nil, fmt.Errorf("submit: %w", ErrInvalidState)
	}

	item := &e.items[e.current]
	q := item.Question
	if err := validateAnswer(q, ans); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	valueChanged := item.Editing && item.Status == ItemSaved && answerDiffers(*item, ans)

	item.Value = ans.Value
	item.ChoiceID = ans.ChoiceID
	item.ActorID = ans.ActorID
	item.AutoFilled = ans.AutoFilled
	if len(ans.Attachments) > 0 {
		item.Attachments = ans.Attachments
	}
	item.Status = ItemSaving
	item.FailReason = ""
	e.state = StateSubmitting

	submissionID := e.submissionID
	questionID := q.ID
	idx := e.current
	e.mu.Unlock()

	next, terminal, err := e.collab.SaveAnswer(ctx, submissionID, questionID, ans)

	e.mu.Lock()
	defer e.mu.Unlock()

	item = &e.items[idx]
	if err != nil {
		item.Status = ItemFailed
		item.FailReason = err.Error()
		e.state = StateAwaitingInput
		e.persistDraft(false)
		return nil, &CollaboratorError{Op: "saving answer", Err: err}
	}

	item.Status = ItemSaved
	item.Editing = false

	truncated := 0
	if valueChanged && idx+1 < len(e.items) {
		// A changed earlier answer invalidates everything after it: the
		// server may branch down a different path now.
		truncated = len(e.items) - (idx + 1)
		e.items = e.items[:idx+1]
	}

	if terminal {
		e.current = len(e.items) - 1
		e.state = StateShowingSummary
		e.persistDraft(true)
		return &SubmitResult{Terminal: true, Truncated: truncated}, nil
	}

	if idx+1 < len(e.items) && e.items[idx+1].Question.ID == next.ID {
		// Resubmitted an unchanged answer; the path ahead is intact.
		e.current = idx + 1
	} else {
		if idx+1 < len(e.items) {
			truncated += len(e.items) - (idx + 1)
		}
		e.items = append(e.items[:idx+1], Item{Question: *next, Status: ItemPending})
		e.current = idx + 1
	}
	e.state = StateAwaitingInput
	e.persistDraft(false)
	return &SubmitResult{Next: next, Truncated: truncated}, nil
}

// NavigateBack moves the current pointer to an earlier, already-saved item
// without contacting the server. Later items are kept until a differing
// value is actually resubmitted.
func (e *Engine) NavigateBack(questionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAwaitingInput && e.state != StateShowingSummary {
		return fmt.Errorf("navigate back: %w", ErrInvalidState)
	}

	for i := 0; i <= min(e.current, len(e.items)-1); i++ {
		if e.items[i].Question.ID == questionID && e.items[i].Status == ItemSaved {
			e.current = i
			e.items[i].Editing = true
			e.state = StateAwaitingInput
			return nil
		}
	}
	return fmt.Errorf("navigate back to %s: %w", questionID, ErrNoSuchItem)
}

// Finalize closes the submission via the collaborator. On success the draft
// is cleared; on failure the engine stays in the summary for retry.
func (e *Engine) Finalize(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateShowingSummary {
		e.mu.Unlock()
		return fmt.Errorf("finalize: %w", ErrInvalidState)
	}
	submissionID := e.submissionID
	key := DraftKey(e.questionnaireID, e.submissionID)
	e.mu.Unlock()

	if err := e.collab.Finalize(ctx, submissionID); err != nil {
		return &CollaboratorError{Op: "finalizing submission", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.drafts.Clear(key)
	e.state = StateFinalized
	return nil
}

// ApplyRecognizedText feeds OCR output back into the item it was requested
// for. The caller passes the question ID captured when recognition started;
// a response for a question that is no longer current is discarded and
// false is returned. The value stays editable and is never auto-submitted.
func (e *Engine) ApplyRecognizedText(questionID, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAwaitingInput || len(e.items) == 0 {
		return false
	}
	item := &e.items[e.current]
	if item.Question.ID != questionID {
		return false
	}
	item.RecognizedText = text
	item.Value = text
	item.AutoFilled = false
	return true
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SubmissionID returns the bound submission identifier.
func (e *Engine) SubmissionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submissionID
}

// Current returns a copy of the current item, or nil before initialization.
func (e *Engine) Current() *Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.items) == 0 {
		return nil
	}
	item := e.items[e.current]
	return &item
}

// CurrentQuestionID returns the ID of the question being shown, or "".
// Field adapters capture it before starting async work so stale responses
// can be detected.
func (e *Engine) CurrentQuestionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.items) == 0 {
		return ""
	}
	return e.items[e.current].Question.ID
}

// Items returns a snapshot of the session's items in submission order.
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Item, len(e.items))
	copy(out, e.items)
	return out
}

// persistDraft writes the current session snapshot. Callers hold e.mu.
func (e *Engine) persistDraft(completed bool) {
	d := &Draft{
		QuestionnaireID: e.questionnaireID,
		SubmissionID:    e.submissionID,
		Items:           make([]Item, len(e.items)),
		Current:         e.current,
		Completed:       completed,
		UpdatedAt:       e.now().UTC(),
	}
	copy(d.Items, e.items)
	e.drafts.Save(d.Key(), d)
}

// validateAnswer enforces the local constraints that must hold before any
// network call: required presence and scalar well-formedness.
func validateAnswer(q Question, ans Answer) error {
	if q.Required && ans.Empty() {
		return &ValidationError{QuestionID: q.ID, Reason: "a value is required"}
	}
	if ans.Empty() {
		return nil
	}
	switch q.Type {
	case QuestionNumber:
		if _, err := strconv.ParseFloat(ans.Value, 64); err != nil {
			return &ValidationError{QuestionID: q.ID, Reason: fmt.Sprintf("%q is not a number", ans.Value)}
		}
	case QuestionDate:
		if _, err := time.Parse("2006-01-02", ans.Value); err != nil {
			return &ValidationError{QuestionID: q.ID, Reason: fmt.Sprintf("%q is not a date (expected YYYY-MM-DD)", ans.Value)}
		}
	case QuestionChoice:
		if ans.ChoiceID == "" {
			return &ValidationError{QuestionID: q.ID, Reason: "a choice must be selected"}
		}
		if _, ok := q.Choice(ans.ChoiceID); !ok {
			return &ValidationError{QuestionID: q.ID, Reason: fmt.Sprintf("unknown choice %q", ans.ChoiceID)}
		}
	}
	return nil
}

func answerDiffers(item Item, ans Answer) bool {
	return item.Value != ans.Value || item.ChoiceID != ans.ChoiceID || item.ActorID != ans.ActorID
}
