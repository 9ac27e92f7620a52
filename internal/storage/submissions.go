package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSubmission stores a new submission row. ID and CreatedAt are filled
// by the caller.
func (s *Store) CreateSubmission(sub Submission) error {
	version := sub.Version
	if version == 0 {
		version = 1
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO submissions (id, questionnaire_id, version, phase, plate, regulator_ref, finalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		sub.ID, sub.QuestionnaireID, version, sub.Phase, sub.Plate, sub.RegulatorRef,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetSubmission returns one submission.
func (s *Store) GetSubmission(id string) (Submission, error) {
	var sub Submission
	var finalized int
	var createdAt string
	var closedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT id, questionnaire_id, version, phase, plate, regulator_ref, finalized, created_at, closed_at
		FROM submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.QuestionnaireID, &sub.Version, &sub.Phase, &sub.Plate, &sub.RegulatorRef, &finalized, &createdAt, &closedAt)
	if err == sql.ErrNoRows {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, err
	}
	sub.Finalized = finalized != 0
	if sub.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Submission{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if closedAt.Valid && closedAt.String != "" {
		if sub.ClosedAt, err = time.Parse(time.RFC3339, closedAt.String); err != nil {
			return Submission{}, fmt.Errorf("parsing closed_at: %w", err)
		}
	}
	return sub, nil
}

// ListSubmissions returns submissions newest first, optionally filtered by
// questionnaire.
func (s *Store) ListSubmissions(questionnaireID string, limit, offset int) ([]Submission, error) {
	query := `
		SELECT id, questionnaire_id, version, phase, plate, regulator_ref, finalized, created_at, closed_at
		FROM submissions`
	args := []any{}
	if questionnaireID != "" {
		query += ` WHERE questionnaire_id = ?`
		args = append(args, questionnaireID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Submission
	for rows.Next() {
		var sub Submission
		var finalized int
		var createdAt string
		var closedAt sql.NullString
		if err := rows.Scan(&sub.ID, &sub.QuestionnaireID, &sub.Version, &sub.Phase, &sub.Plate, &sub.RegulatorRef, &finalized, &createdAt, &closedAt); err != nil {
			return nil, err
		}
		sub.Finalized = finalized != 0
		if sub.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if closedAt.Valid && closedAt.String != "" {
			if sub.ClosedAt, err = time.Parse(time.RFC3339, closedAt.String); err != nil {
				return nil, fmt.Errorf("parsing closed_at: %w", err)
			}
		}
		results = append(results, sub)
	}
	return results, rows.Err()
}

// FinalizeSubmission marks a submission closed. Finalizing twice is not an
// error; the first closure timestamp wins.
func (s *Store) FinalizeSubmission(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE submissions SET finalized = 1, closed_at = COALESCE(closed_at, ?) WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnswer upserts one answer. When an earlier answer's value changes,
// every answer at a later position is removed in the same transaction: the
// branch taken from here on may no longer match the recorded path.
func (s *Store) SaveAnswer(a Answer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning answer transaction: %w", err)
	}
	defer tx.Rollback()

	var finalized int
	err = tx.QueryRow(`SELECT finalized FROM submissions WHERE id = ?`, a.SubmissionID).Scan(&finalized)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if finalized != 0 {
		return ErrFinalized
	}

	var prevValue, prevChoice, prevActor string
	changed := false
	err = tx.QueryRow(`SELECT value, choice_id, actor_id FROM answers WHERE submission_id = ? AND question_id = ?`,
		a.SubmissionID, a.QuestionID,
	).Scan(&prevValue, &prevChoice, &prevActor)
	switch {
	case err == sql.ErrNoRows:
		// first answer for this question
	case err != nil:
		return err
	default:
		changed = prevValue != a.Value || prevChoice != a.ChoiceID || prevActor != a.ActorID
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO answers (id, submission_id, question_id, position, value, choice_id, actor_id, auto_filled, recognized_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission_id, question_id) DO UPDATE SET
			value = excluded.value,
			choice_id = excluded.choice_id,
			actor_id = excluded.actor_id,
			auto_filled = excluded.auto_filled,
			recognized_text = excluded.recognized_text`,
		a.ID, a.SubmissionID, a.QuestionID, a.Position, a.Value, a.ChoiceID, a.ActorID,
		boolInt(a.AutoFilled), a.RecognizedText, now,
	); err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}

	if changed {
		if _, err := tx.Exec(`DELETE FROM answers WHERE submission_id = ? AND position > ?`,
			a.SubmissionID, a.Position,
		); err != nil {
			return fmt.Errorf("truncating later answers: %w", err)
		}
	}

	return tx.Commit()
}

// ListAnswers returns a submission's answers in position order.
func (s *Store) ListAnswers(submissionID string) ([]Answer, error) {
	rows, err := s.db.Query(`
		SELECT id, submission_id, question_id, position, value, choice_id, actor_id, auto_filled, recognized_text, created_at
		FROM answers WHERE submission_id = ? ORDER BY position ASC`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Answer
	for rows.Next() {
		var a Answer
		var autoFilled int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.Position, &a.Value, &a.ChoiceID, &a.ActorID, &autoFilled, &a.RecognizedText, &createdAt); err != nil {
			return nil, err
		}
		a.AutoFilled = autoFilled != 0
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// SaveAttachment stores one captured file.
func (s *Store) SaveAttachment(att AttachmentRecord) error {
	createdAt := att.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO attachments (id, submission_id, question_id, filename, content_type, content, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.SubmissionID, att.QuestionID, att.Filename, att.ContentType, att.Content,
		att.ExtractedText, createdAt.Format(time.RFC3339),
	)
	return err
}

// ListAttachments returns a submission's attachments.
func (s *Store) ListAttachments(submissionID string) ([]AttachmentRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, submission_id, question_id, filename, content_type, content, extracted_text, created_at
		FROM attachments WHERE submission_id = ? ORDER BY created_at ASC`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AttachmentRecord
	for rows.Next() {
		var att AttachmentRecord
		var createdAt string
		if err := rows.Scan(&att.ID, &att.SubmissionID, &att.QuestionID, &att.Filename, &att.ContentType, &att.Content, &att.ExtractedText, &createdAt); err != nil {
			return nil, err
		}
		if att.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, att)
	}
	return results, rows.Err()
}

// UpdateAttachmentText stores the text extracted by the indexing worker.
func (s *Store) UpdateAttachmentText(id, text string) error {
	res, err := s.db.Exec(`UPDATE attachments SET extracted_text = ? WHERE id = ?`, text, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
