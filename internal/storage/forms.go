package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/garitadev/garita/internal/flow"
)

// QuestionnaireDef is the import format for a complete questionnaire
// definition: header plus ordered questions.
type QuestionnaireDef struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Version   int             `json:"version"`
	Questions []flow.Question `json:"questions"`
}

// ImportQuestionnaire replaces the stored definition of a questionnaire
// with def, atomically. Existing submissions are untouched.
func (s *Store) ImportQuestionnaire(def QuestionnaireDef) error {
	if def.ID == "" {
		return fmt.Errorf("questionnaire id is required")
	}
	version := def.Version
	if version == 0 {
		version = 1
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM choices WHERE question_id IN (SELECT id FROM questions WHERE questionnaire_id = ?)`, def.ID); err != nil {
		return fmt.Errorf("clearing choices: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE questionnaire_id = ?`, def.ID); err != nil {
		return fmt.Errorf("clearing questions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO questionnaires (id, title, version, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, version = excluded.version`,
		def.ID, def.Title, version, now,
	); err != nil {
		return fmt.Errorf("saving questionnaire: %w", err)
	}

	for _, q := range def.Questions {
		if _, err := tx.Exec(`
			INSERT INTO questions (id, questionnaire_id, prompt, type, required, position, file_mode, tag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, def.ID, q.Prompt, string(q.Type), boolInt(q.Required), q.Position, string(q.FileMode), q.Tag,
		); err != nil {
			return fmt.Errorf("saving question %s: %w", q.ID, err)
		}
		for i, c := range q.Choices {
			choiceID := fmt.Sprintf("%s.%s", q.ID, c.ID)
			if _, err := tx.Exec(`
				INSERT INTO choices (id, question_id, label, branch_to, position) VALUES (?, ?, ?, ?, ?)`,
				choiceID, q.ID, c.Label, c.BranchTo, i,
			); err != nil {
				return fmt.Errorf("saving choice %s of %s: %w", c.ID, q.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetQuestionnaire returns the questionnaire header.
func (s *Store) GetQuestionnaire(id string) (Questionnaire, error) {
	var q Questionnaire
	var createdAt string
	err := s.db.QueryRow(`SELECT id, title, version, created_at FROM questionnaires WHERE id = ?`, id).
		Scan(&q.ID, &q.Title, &q.Version, &createdAt)
	if err == sql.ErrNoRows {
		return Questionnaire{}, ErrNotFound
	}
	if err != nil {
		return Questionnaire{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("parsing created_at: %w", err)
	}
	q.CreatedAt = t
	return q, nil
}

// FirstQuestion returns the lowest-positioned question of a questionnaire.
func (s *Store) FirstQuestion(questionnaireID string) (flow.Question, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM questions WHERE questionnaire_id = ? ORDER BY position ASC LIMIT 1`,
		questionnaireID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return flow.Question{}, ErrNotFound
	}
	if err != nil {
		return flow.Question{}, err
	}
	return s.GetQuestion(id)
}

// GetQuestion returns a question with its choices.
func (s *Store) GetQuestion(id string) (flow.Question, error) {
	var q flow.Question
	var typ, fileMode string
	var required int
	err := s.db.QueryRow(`
		SELECT id, prompt, type, required, position, file_mode, tag
		FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Prompt, &typ, &required, &q.Position, &fileMode, &q.Tag)
	if err == sql.ErrNoRows {
		return flow.Question{}, ErrNotFound
	}
	if err != nil {
		return flow.Question{}, err
	}
	q.Type = flow.QuestionType(typ)
	q.FileMode = flow.FileMode(fileMode)
	q.Required = required != 0

	rows, err := s.db.Query(`SELECT id, label, branch_to FROM choices WHERE question_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return flow.Question{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var c flow.Choice
		var storedID string
		if err := rows.Scan(&storedID, &c.Label, &c.BranchTo); err != nil {
			return flow.Question{}, err
		}
		// Choice IDs are stored namespaced by question; expose the bare ID.
		c.ID = trimChoicePrefix(storedID, q.ID)
		q.Choices = append(q.Choices, c)
	}
	return q, rows.Err()
}

// NextQuestion returns the question following afterPosition in display
// order, or nil when the questionnaire is exhausted.
func (s *Store) NextQuestion(questionnaireID string, afterPosition int) (*flow.Question, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM questions WHERE questionnaire_id = ? AND position > ?
		ORDER BY position ASC LIMIT 1`,
		questionnaireID, afterPosition,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q, err := s.GetQuestion(id)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func trimChoicePrefix(storedID, questionID string) string {
	prefix := questionID + "."
	if len(storedID) > len(prefix) && storedID[:len(prefix)] == prefix {
		return storedID[len(prefix):]
	}
	return storedID
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
