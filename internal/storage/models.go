package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrFinalized is returned when a write targets an already finalized
// submission.
var ErrFinalized = errors.New("submission is finalized")

// Questionnaire is the server-defined form definition header.
type Questionnaire struct {
	ID        string
	Title     string
	Version   int
	CreatedAt time.Time
}

// Submission is one run through a questionnaire tied to a vehicle/phase.
type Submission struct {
	ID              string
	QuestionnaireID string
	Version         int
	Phase           string
	Plate           string
	RegulatorRef    string
	Finalized       bool
	CreatedAt       time.Time
	ClosedAt        time.Time // zero until finalized
}

// Answer is one persisted answer within a submission.
type Answer struct {
	ID             string
	SubmissionID   string
	QuestionID     string
	Position       int
	Value          string
	ChoiceID       string
	ActorID        string
	AutoFilled     bool
	RecognizedText string
	CreatedAt      time.Time
}

// AttachmentRecord is a stored file captured for a question. ExtractedText
// is filled by the indexing worker after finalization.
type AttachmentRecord struct {
	ID            string
	SubmissionID  string
	QuestionID    string
	Filename      string
	ContentType   string
	Content       []byte
	ExtractedText string
	CreatedAt     time.Time
}

// ActorRecord is a business-partner catalog entry.
type ActorRecord struct {
	ID        string
	Name      string
	Kind      string
	Active    bool
	CreatedAt time.Time
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobTypeAttachmentIndex extracts text from a finalized submission's
// attachments.
const JobTypeAttachmentIndex = "attachment_index"

// Job is one queued background task.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
