package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
	"github.com/garitadev/garita/internal/storage"
)

const maxRequestBodySize = 10 << 20 // 10MB, bounds attachment uploads

const maxActorResults = 50

// AttachmentVerifier abstracts document recognition for the API layer.
type AttachmentVerifier interface {
	ProcessAttachment(ctx context.Context, questionID string, att flow.Attachment) ocr.Result
}

type AppDeps struct {
	Store    *storage.Store
	Verifier AttachmentVerifier // optional; if nil, /verify reports recognition unavailable
	Token    string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/questionnaires/{id}/submissions", handleCreateSubmission(deps))
		r.Get("/questionnaires/{id}/first-question", handleFirstQuestion(deps))
		r.Post("/submissions/{id}/answers", handleSaveAnswer(deps))
		r.Post("/submissions/{id}/finalize", handleFinalize(deps))
		r.Get("/submissions", handleListSubmissions(deps))
		r.Get("/submissions/{id}", handleGetSubmission(deps))
		r.Get("/actors", handleSearchActors(deps))
		r.Post("/actors/import", handleImportActors(deps))
		r.Post("/questionnaires/import", handleImportQuestionnaire(deps))
		r.Post("/questions/{id}/verify", handleVerifyAttachment(deps))
	})

	return r
}

type createSubmissionRequest struct {
	Phase        string `json:"phase"`
	Plate        string `json:"plate"`
	RegulatorRef string `json:"regulator_ref"`
}

type createSubmissionResponse struct {
	SubmissionID string         `json:"submission_id"`
	Question     *flow.Question `json:"question"`
}

func handleCreateSubmission(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionnaireID := chi.URLParam(r, "id")

		var req createSubmissionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		qn, err := deps.Store.GetQuestionnaire(questionnaireID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "questionnaire not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load questionnaire: %v", err)
			return
		}

		sub := storage.Submission{
			ID:              uuid.New().String(),
			QuestionnaireID: qn.ID,
			Version:         qn.Version,
			Phase:           req.Phase,
			Plate:           req.Plate,
			RegulatorRef:    req.RegulatorRef,
			CreatedAt:       time.Now().UTC(),
		}
		if err := deps.Store.CreateSubmission(sub); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create submission: %v", err)
			return
		}

		first, err := deps.Store.FirstQuestion(qn.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load first question: %v", err)
			return
		}

		writeJSON(w, createSubmissionResponse{SubmissionID: sub.ID, Question: &first})
	}
}

func handleFirstQuestion(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionnaireID := chi.URLParam(r, "id")

		q, err := deps.Store.FirstQuestion(questionnaireID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "questionnaire not found or empty")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load first question: %v", err)
			return
		}

		writeJSON(w, q)
	}
}

type answerRequest struct {
	QuestionID     string            `json:"question_id"`
	Value          string            `json:"value"`
	ChoiceID       string            `json:"choice_id"`
	ActorID        string            `json:"actor_id"`
	AutoFilled     bool              `json:"auto_filled"`
	RecognizedText string            `json:"recognized_text"`
	Attachments    []flow.Attachment `json:"attachments"`
}

type advanceResponse struct {
	Next     *flow.Question `json:"next"`
	Terminal bool           `json:"terminal"`
}

// handleSaveAnswer records one answer and resolves what comes next. Branching
// is decided here: a selected choice's branch target wins, otherwise the
// questionnaire advances by position. Clients treat the branch hints they see
// as advisory.
func handleSaveAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.QuestionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question_id is required")
			return
		}

		sub, err := deps.Store.GetSubmission(submissionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "submission not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load submission: %v", err)
			return
		}

		q, err := deps.Store.GetQuestion(req.QuestionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown question %q", req.QuestionID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load question: %v", err)
			return
		}

		var branchTo string
		if q.Type == flow.QuestionChoice {
			if req.ChoiceID == "" && q.Required {
				httpError(w, http.StatusBadRequest, "validation_error", "question %q requires a choice", q.ID)
				return
			}
			if req.ChoiceID != "" {
				c, ok := q.Choice(req.ChoiceID)
				if !ok {
					httpError(w, http.StatusBadRequest, "validation_error", "choice %q is not an option of question %q", req.ChoiceID, q.ID)
					return
				}
				branchTo = c.BranchTo
			}
		} else if q.Required && req.Value == "" && req.ActorID == "" && len(req.Attachments) == 0 {
			httpError(w, http.StatusBadRequest, "validation_error", "question %q requires an answer", q.ID)
			return
		}

		answer := storage.Answer{
			ID:             uuid.New().String(),
			SubmissionID:   sub.ID,
			QuestionID:     q.ID,
			Position:       q.Position,
			Value:          req.Value,
			ChoiceID:       req.ChoiceID,
			ActorID:        req.ActorID,
			AutoFilled:     req.AutoFilled,
			RecognizedText: req.RecognizedText,
		}
		err = deps.Store.SaveAnswer(answer)
		if errors.Is(err, storage.ErrFinalized) {
			httpError(w, http.StatusConflict, "invalid_request_error", "submission is finalized")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save answer: %v", err)
			return
		}

		for _, att := range req.Attachments {
			rec := storage.AttachmentRecord{
				ID:           uuid.New().String(),
				SubmissionID: sub.ID,
				QuestionID:   q.ID,
				Filename:     att.Filename,
				ContentType:  att.ContentType,
				Content:      att.Content,
				CreatedAt:    time.Now().UTC(),
			}
			if err := deps.Store.SaveAttachment(rec); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to save attachment: %v", err)
				return
			}
		}

		next, err := resolveNext(deps.Store, sub.QuestionnaireID, q, branchTo)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve next question: %v", err)
			return
		}

		writeJSON(w, advanceResponse{Next: next, Terminal: next == nil})
	}
}

func resolveNext(store *storage.Store, questionnaireID string, q flow.Question, branchTo string) (*flow.Question, error) {
	if branchTo != "" {
		target, err := store.GetQuestion(branchTo)
		if err != nil {
			return nil, err
		}
		return &target, nil
	}
	return store.NextQuestion(questionnaireID, q.Position)
}

func handleFinalize(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionID := chi.URLParam(r, "id")

		err := deps.Store.FinalizeSubmission(submissionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "submission not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to finalize submission: %v", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"submission_id": submissionID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        storage.JobTypeAttachmentIndex,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue indexing job: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "finalized"})
	}
}

func handleListSubmissions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		questionnaireID := r.URL.Query().Get("questionnaire")

		subs, err := deps.Store.ListSubmissions(questionnaireID, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list submissions: %v", err)
			return
		}
		if subs == nil {
			subs = []storage.Submission{}
		}

		writeJSON(w, subs)
	}
}

type attachmentSummary struct {
	ID            string `json:"id"`
	QuestionID    string `json:"question_id"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

type submissionDetail struct {
	Submission  storage.Submission  `json:"submission"`
	Answers     []storage.Answer    `json:"answers"`
	Attachments []attachmentSummary `json:"attachments"`
}

func handleGetSubmission(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionID := chi.URLParam(r, "id")

		sub, err := deps.Store.GetSubmission(submissionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "submission not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load submission: %v", err)
			return
		}

		answers, err := deps.Store.ListAnswers(sub.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list answers: %v", err)
			return
		}
		if answers == nil {
			answers = []storage.Answer{}
		}

		attachments, err := deps.Store.ListAttachments(sub.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list attachments: %v", err)
			return
		}
		summaries := make([]attachmentSummary, len(attachments))
		for i, att := range attachments {
			summaries[i] = attachmentSummary{
				ID:            att.ID,
				QuestionID:    att.QuestionID,
				Filename:      att.Filename,
				ContentType:   att.ContentType,
				ExtractedText: att.ExtractedText,
			}
		}

		writeJSON(w, submissionDetail{Submission: sub, Answers: answers, Attachments: summaries})
	}
}

type actorResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func handleSearchActors(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		kind := r.URL.Query().Get("kind")
		limit := parseIntParam(r, "limit", maxActorResults, maxActorResults)

		actors, err := deps.Store.SearchActors(query, kind, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search actors: %v", err)
			return
		}

		results := make([]actorResult, len(actors))
		for i, a := range actors {
			results[i] = actorResult{ID: a.ID, Name: a.Name, Kind: a.Kind}
		}

		writeJSON(w, results)
	}
}

type importActorsRequest struct {
	Actors []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Kind   string `json:"kind"`
		Active *bool  `json:"active"`
	} `json:"actors"`
}

func handleImportActors(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req importActorsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Actors) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "actors is required and must not be empty")
			return
		}

		records := make([]storage.ActorRecord, len(req.Actors))
		for i, a := range req.Actors {
			if a.ID == "" || a.Name == "" || a.Kind == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "actor %d: id, name and kind are required", i)
				return
			}
			active := true
			if a.Active != nil {
				active = *a.Active
			}
			records[i] = storage.ActorRecord{ID: a.ID, Name: a.Name, Kind: a.Kind, Active: active}
		}

		if err := deps.Store.ImportActors(records); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import actors: %v", err)
			return
		}

		writeJSON(w, map[string]any{"status": "imported", "count": len(records)})
	}
}

func handleImportQuestionnaire(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var def storage.QuestionnaireDef
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if def.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "questionnaire id is required")
			return
		}

		if err := deps.Store.ImportQuestionnaire(def); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import questionnaire: %v", err)
			return
		}

		writeJSON(w, map[string]any{"status": "imported", "questions": len(def.Questions)})
	}
}

func handleVerifyAttachment(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var att flow.Attachment
		if err := json.NewDecoder(r.Body).Decode(&att); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if deps.Verifier == nil {
			writeJSON(w, ocr.Result{Valid: false, Message: "document recognition is not configured"})
			return
		}

		result := deps.Verifier.ProcessAttachment(r.Context(), questionID, att)
		writeJSON(w, result)
	}
}
