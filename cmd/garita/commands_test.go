package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garitadev/garita/internal/config"
	"github.com/garitadev/garita/internal/flow"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCollaboratorCreateSubmission(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /questionnaires/chk-in/submissions": `{"submission_id":"sub-1","question":{"id":"q1","prompt":"Plate","type":"free_text","position":0}}`,
	})

	collab := &httpCollaborator{client: ts.client(), plate: "ABC123", regulatorRef: "REF-9"}
	id, err := collab.CreateSubmission(ctx, "chk-in", "entry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sub-1" {
		t.Errorf("submission id = %q, want sub-1", id)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["phase"] != "entry" {
		t.Errorf("body.phase = %q, want entry", body["phase"])
	}
	if body["plate"] != "ABC123" {
		t.Errorf("body.plate = %q, want ABC123", body["plate"])
	}
	if body["regulator_ref"] != "REF-9" {
		t.Errorf("body.regulator_ref = %q, want REF-9", body["regulator_ref"])
	}
}

func TestCollaboratorFirstQuestion(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /questionnaires/chk-in/first-question": `{"id":"q1","prompt":"Plate number","type":"free_text","required":true,"position":0}`,
	})

	collab := &httpCollaborator{client: ts.client()}
	q, err := collab.FirstQuestion(ctx, "chk-in")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ID != "q1" || q.Type != flow.QuestionFreeText || !q.Required {
		t.Errorf("unexpected question: %+v", q)
	}
}

func TestCollaboratorSaveAnswerAdvances(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /submissions/sub-1/answers": `{"next":{"id":"q2","prompt":"Sealed?","type":"choice","position":1},"terminal":false}`,
	})

	collab := &httpCollaborator{client: ts.client()}
	next, terminal, err := collab.SaveAnswer(ctx, "sub-1", "q1", flow.Answer{Value: "ABC123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminal {
		t.Error("expected non-terminal advance")
	}
	if next == nil || next.ID != "q2" {
		t.Errorf("next = %+v, want q2", next)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["question_id"] != "q1" {
		t.Errorf("body.question_id = %v, want q1", body["question_id"])
	}
	if body["value"] != "ABC123" {
		t.Errorf("body.value = %v, want ABC123", body["value"])
	}
	if _, ok := body["attachments"]; ok {
		t.Error("attachments should be omitted when empty")
	}
}

func TestCollaboratorSaveAnswerTerminal(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /submissions/sub-1/answers": `{"next":null,"terminal":true}`,
	})

	collab := &httpCollaborator{client: ts.client()}
	next, terminal, err := collab.SaveAnswer(ctx, "sub-1", "q4", flow.Answer{
		Value:       "DOC-1",
		Attachments: []flow.Attachment{{Filename: "guide.pdf", ContentType: "application/pdf", Content: []byte("%PDF-")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !terminal || next != nil {
		t.Errorf("got next=%v terminal=%v, want terminal end", next, terminal)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if _, ok := body["attachments"]; !ok {
		t.Error("expected attachments in request body")
	}
}

func TestCollaboratorFinalize(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /submissions/sub-1/finalize": `{"status":"finalized"}`,
	})

	collab := &httpCollaborator{client: ts.client()}
	if err := collab.Finalize(ctx, "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/submissions/sub-1/finalize" {
		t.Errorf("unexpected requests: %+v", ts.requests)
	}
}

func TestCollaboratorSaveAnswerServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		w.Write([]byte(`{"error":{"message":"submission is finalized","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	collab := &httpCollaborator{client: &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}}
	_, _, err := collab.SaveAnswer(ctx, "sub-1", "q1", flow.Answer{Value: "x"})
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("error = %q, want it to contain '409'", err.Error())
	}
}

func TestActorSearchEncodesQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /actors": `[{"id":"A-1","name":"Frigorifico Sur & Cia","kind":"PROVEEDOR"}]`,
	})

	search := &apiActorSearch{client: ts.client()}
	actors, err := search.Search(ctx, "sur & cia", "PROVEEDOR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actors) != 1 || actors[0].ID != "A-1" {
		t.Errorf("unexpected actors: %+v", actors)
	}

	reqPath := ts.requests[0].Path
	if strings.Contains(reqPath, "& cia") {
		t.Errorf("query not URL-encoded: %q", reqPath)
	}
	if !strings.Contains(reqPath, "q=sur+%26+cia") {
		t.Errorf("unexpected encoded path: %q", reqPath)
	}
	if !strings.Contains(reqPath, "kind=PROVEEDOR") {
		t.Errorf("kind filter missing from path: %q", reqPath)
	}
}

func TestVerifierDegradesWhenServerIsDown(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	verifier := &apiVerifier{client: ts.client()}
	res := verifier.ProcessAttachment(ctx, "q4", flow.Attachment{Filename: "f.jpg", Content: []byte{1}})
	if res.Valid {
		t.Error("expected invalid result when server is unreachable")
	}
	if res.Message == "" {
		t.Error("expected an explanatory message")
	}
}

func TestVerifierReturnsServerResult(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /questions/q4/verify": `{"recognized_text":"ABC123","valid":true}`,
	})

	verifier := &apiVerifier{client: ts.client()}
	res := verifier.ProcessAttachment(ctx, "q4", flow.Attachment{Filename: "f.jpg", Content: []byte{1}})
	if !res.Valid || res.RecognizedText != "ABC123" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get("/submissions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestClientReportsUnreachableServer(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get("/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.OCR.BaseURL = "http://localhost:9090"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4100" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4100 in ShowAll output")
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"0123456789abcdef", "01234567"},
	}
	for _, tt := range tests {
		if got := shortID(tt.in); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
