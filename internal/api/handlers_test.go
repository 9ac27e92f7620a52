package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
	"github.com/garitadev/garita/internal/storage"
)

const testToken = "test-token-12345"

type stubVerifier struct {
	result ocr.Result
}

func (s *stubVerifier) ProcessAttachment(_ context.Context, _ string, _ flow.Attachment) ocr.Result {
	return s.result
}

func setupAppHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewAppHandler(AppDeps{
		Store:    store,
		Verifier: &stubVerifier{result: ocr.Result{RecognizedText: "ABC123", Valid: true}},
		Token:    testToken,
	})
	return handler, store
}

func importChecklist(t *testing.T, store *storage.Store) {
	t.Helper()
	def := storage.QuestionnaireDef{
		ID:    "chk-in",
		Title: "Entry checklist",
		Questions: []flow.Question{
			{ID: "q1", Prompt: "Plate number", Type: flow.QuestionFreeText, Required: true, Position: 0},
			{ID: "q2", Prompt: "Hazardous load?", Type: flow.QuestionChoice, Required: true, Position: 1, Choices: []flow.Choice{
				{ID: "c1", Label: "Sí", BranchTo: "q4"},
				{ID: "c2", Label: "No"},
			}},
			{ID: "q3", Prompt: "Pallet count", Type: flow.QuestionNumber, Position: 2},
			{ID: "q4", Prompt: "Safety sheet", Type: flow.QuestionFile, Position: 3, FileMode: flow.FileModeOCR},
		},
	}
	if err := store.ImportQuestionnaire(def); err != nil {
		t.Fatalf("ImportQuestionnaire: %v", err)
	}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func createSubmission(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questionnaires/chk-in/submissions", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("create submission status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp createSubmissionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if resp.SubmissionID == "" {
		t.Fatal("response missing submission_id")
	}
	return resp.SubmissionID
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)

	for _, tc := range []struct {
		method, url string
	}{
		{http.MethodPost, "/questionnaires/chk-in/submissions"},
		{http.MethodGet, "/submissions"},
		{http.MethodGet, "/actors?q=ac"},
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(tc.method, tc.url, "", ""))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", tc.method, tc.url, rr.Code)
		}
	}
}

func TestHealthNeedsNoToken(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rr.Code)
	}
}

func TestCreateSubmissionReturnsFirstQuestion(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)

	rr := httptest.NewRecorder()
	body := `{"phase":"entry","plate":"ABC123"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questionnaires/chk-in/submissions", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp createSubmissionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Question == nil || resp.Question.ID != "q1" {
		t.Errorf("first question = %+v, want q1", resp.Question)
	}

	sub, err := store.GetSubmission(resp.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Phase != "entry" || sub.Plate != "ABC123" {
		t.Errorf("unexpected submission: %+v", sub)
	}
}

func TestCreateSubmissionUnknownQuestionnaire(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questionnaires/missing/submissions", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSaveAnswerAdvancesByPosition(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q1","value":"ABC123"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp advanceResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Terminal || resp.Next == nil || resp.Next.ID != "q2" {
		t.Errorf("advance = %+v, want next q2", resp)
	}
}

func TestSaveAnswerChoiceBranches(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q2","choice_id":"c1","value":"Sí"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp advanceResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Next == nil || resp.Next.ID != "q4" {
		t.Errorf("branch target = %+v, want q4", resp.Next)
	}
}

func TestSaveAnswerLastQuestionIsTerminal(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q4","value":"recognized text","attachments":[{"filename":"sheet.pdf","content_type":"application/pdf","content":"JVBERi0="}]}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp advanceResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Terminal || resp.Next != nil {
		t.Errorf("advance = %+v, want terminal", resp)
	}

	atts, err := store.ListAttachments(subID)
	if err != nil {
		t.Fatalf("ListAttachments: %v", err)
	}
	if len(atts) != 1 || atts[0].Filename != "sheet.pdf" {
		t.Errorf("unexpected attachments: %+v", atts)
	}
}

func TestSaveAnswerRequiredEmptyRejected(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q1","value":""}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSaveAnswerUnknownChoiceRejected(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q2","choice_id":"c9"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSaveAnswerFinalizedConflict(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/finalize", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("finalize status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	body := `{"question_id":"q1","value":"late"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestFinalizeEnqueuesIndexingJob(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/finalize", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	job, err := store.ClaimNextJob([]string{storage.JobTypeAttachmentIndex})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no indexing job enqueued")
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if payload["submission_id"] != subID {
		t.Errorf("payload submission_id = %q, want %q", payload["submission_id"], subID)
	}
}

func TestGetSubmissionDetail(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	subID := createSubmission(t, h)

	rr := httptest.NewRecorder()
	body := `{"question_id":"q1","value":"ABC123"}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/submissions/"+subID+"/answers", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("answer status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/submissions/"+subID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var detail submissionDetail
	if err := json.NewDecoder(rr.Body).Decode(&detail); err != nil {
		t.Fatalf("decoding detail: %v", err)
	}
	if detail.Submission.ID != subID {
		t.Errorf("submission id = %q, want %q", detail.Submission.ID, subID)
	}
	if len(detail.Answers) != 1 || detail.Answers[0].Value != "ABC123" {
		t.Errorf("unexpected answers: %+v", detail.Answers)
	}
}

func TestListSubmissions(t *testing.T) {
	h, store := setupAppHandler(t)
	importChecklist(t, store)
	createSubmission(t, h)
	createSubmission(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/submissions?questionnaire=chk-in", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var subs []storage.Submission
	if err := json.NewDecoder(rr.Body).Decode(&subs); err != nil {
		t.Fatalf("decoding submissions: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("got %d submissions, want 2", len(subs))
	}
}

func TestSearchActorsCapsResults(t *testing.T) {
	h, store := setupAppHandler(t)

	var actors []storage.ActorRecord
	for i := 0; i < 60; i++ {
		actors = append(actors, storage.ActorRecord{
			ID:     fmt.Sprintf("act-%02d", i),
			Name:   fmt.Sprintf("Acme Branch %02d", i),
			Kind:   "PROVEEDOR",
			Active: true,
		})
	}
	if err := store.ImportActors(actors); err != nil {
		t.Fatalf("ImportActors: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/actors?q=acme&kind=PROVEEDOR", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var results []actorResult
	if err := json.NewDecoder(rr.Body).Decode(&results); err != nil {
		t.Fatalf("decoding actors: %v", err)
	}
	if len(results) != maxActorResults {
		t.Errorf("got %d actors, want cap of %d", len(results), maxActorResults)
	}
}

func TestSearchActorsRequiresQuery(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/actors", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestImportActorsEndpoint(t *testing.T) {
	h, store := setupAppHandler(t)

	rr := httptest.NewRecorder()
	body := `{"actors":[{"id":"act-1","name":"Aceros del Norte","kind":"PROVEEDOR"}]}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/actors/import", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	a, err := store.GetActor("act-1")
	if err != nil {
		t.Fatalf("GetActor: %v", err)
	}
	if !a.Active {
		t.Error("imported actor should default to active")
	}
}

func TestImportQuestionnaireEndpoint(t *testing.T) {
	h, store := setupAppHandler(t)

	rr := httptest.NewRecorder()
	body := `{"id":"chk-in","title":"Entry checklist","questions":[{"id":"q1","prompt":"Plate number","type":"free_text","required":true,"position":0}]}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questionnaires/import", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	q, err := store.FirstQuestion("chk-in")
	if err != nil {
		t.Fatalf("FirstQuestion: %v", err)
	}
	if q.ID != "q1" {
		t.Errorf("first question = %q, want q1", q.ID)
	}
}

func TestVerifyAttachment(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	body := `{"filename":"plate.jpg","content_type":"image/jpeg","content":"aGVsbG8="}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questions/q1/verify", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var result ocr.Result
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !result.Valid || result.RecognizedText != "ABC123" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestVerifyAttachmentWithoutVerifier(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h := NewAppHandler(AppDeps{Store: store, Token: testToken})

	rr := httptest.NewRecorder()
	body := `{"filename":"plate.jpg","content_type":"image/jpeg","content":"aGVsbG8="}`
	h.ServeHTTP(rr, authReq(http.MethodPost, "/questions/q1/verify", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var result ocr.Result
	json.NewDecoder(rr.Body).Decode(&result)
	if result.Valid {
		t.Errorf("result valid without a verifier: %+v", result)
	}
}
