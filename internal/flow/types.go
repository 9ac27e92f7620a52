// Package flow implements the question-flow state machine that drives a
// single intake submission: which question is current, which answers the
// server has acknowledged, and how in-progress work is drafted and resumed.
package flow

import (
	"fmt"
	"time"
)

// QuestionType identifies how a question is answered.
type QuestionType string

const (
	QuestionFreeText QuestionType = "free_text"
	QuestionNumber   QuestionType = "number"
	QuestionDate     QuestionType = "date"
	QuestionFile     QuestionType = "file"
	QuestionChoice   QuestionType = "choice"
)

// FileMode selects the capture behavior for file questions.
type FileMode string

const (
	FileModeImage    FileMode = "image"     // attach only
	FileModeImageOCR FileMode = "image_ocr" // attach and recognize
	FileModeOCR      FileMode = "ocr"       // recognized text is the answer
)

// Choice is one selectable option of a choice question. BranchTo, when set,
// is a hint for the server's advance logic; the client never resolves
// branching itself.
type Choice struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	BranchTo string `json:"branch_to,omitempty"`
}

// Question is one server-defined unit of the questionnaire. Immutable from
// the engine's perspective for the duration of a submission session.
type Question struct {
	ID       string       `json:"id"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Position int          `json:"position"`
	Choices  []Choice     `json:"choices,omitempty"`
	FileMode FileMode     `json:"file_mode,omitempty"`
	// Tag is a server-attached semantic hint selecting a specialized field
	// adapter, e.g. "actor:supplier".
	Tag string `json:"tag,omitempty"`
}

// Choice returns the choice with the given ID.
func (q Question) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// WantsOCR reports whether answering this question should run recognition
// on the attached file.
func (q Question) WantsOCR() bool {
	return q.Type == QuestionFile && (q.FileMode == FileModeImageOCR || q.FileMode == FileModeOCR)
}

// ItemStatus tracks server acknowledgment for one item. The tagged variant
// replaces independent saved/saving/failed booleans so that impossible
// combinations cannot be represented.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSaving  ItemStatus = "saving"
	ItemSaved   ItemStatus = "saved"
	ItemFailed  ItemStatus = "failed"
)

// Attachment is a file captured for a file question.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Item is the engine's local view of one answered-or-pending question.
type Item struct {
	Question       Question     `json:"question"`
	Value          string       `json:"value"`
	ChoiceID       string       `json:"choice_id,omitempty"`
	ActorID        string       `json:"actor_id,omitempty"`
	Status         ItemStatus   `json:"status"`
	FailReason     string       `json:"fail_reason,omitempty"`
	Editing        bool         `json:"editing,omitempty"`
	AutoFilled     bool         `json:"auto_filled,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	RecognizedText string       `json:"recognized_text,omitempty"`
}

// Answer is the normalized payload a field adapter produces and the engine
// submits. BranchTo carries the selected choice's branch hint to the server.
type Answer struct {
	Value       string       `json:"value"`
	ChoiceID    string       `json:"choice_id,omitempty"`
	ChoiceLabel string       `json:"choice_label,omitempty"`
	BranchTo    string       `json:"branch_to,omitempty"`
	ActorID     string       `json:"actor_id,omitempty"`
	AutoFilled  bool         `json:"auto_filled,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Empty reports whether the answer carries no value of any kind.
func (a Answer) Empty() bool {
	return a.Value == "" && a.ChoiceID == "" && a.ActorID == "" && len(a.Attachments) == 0
}

// Draft is the locally persisted snapshot of an in-progress submission.
type Draft struct {
	QuestionnaireID string    `json:"questionnaire_id"`
	SubmissionID    string    `json:"submission_id"`
	Items           []Item    `json:"items"`
	Current         int       `json:"current"`
	Completed       bool      `json:"completed"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Key returns the storage key for this draft.
func (d Draft) Key() string {
	return DraftKey(d.QuestionnaireID, d.SubmissionID)
}

// DraftKey builds the draft storage key for a questionnaire/submission pair.
// A draft is only resumable when both identifiers match.
func DraftKey(questionnaireID, submissionID string) string {
	return fmt.Sprintf("%s.%s", questionnaireID, submissionID)
}
