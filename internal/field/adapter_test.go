package field

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
)

type mockSearcher struct {
	results  []Actor
	err      error
	gotQuery string
	gotKind  string
}

func (m *mockSearcher) Search(ctx context.Context, query, kind string) ([]Actor, error) {
	m.gotQuery = query
	m.gotKind = kind
	return m.results, m.err
}

type mockVerifier struct {
	result ocr.Result
	calls  int
}

func (m *mockVerifier) ProcessAttachment(ctx context.Context, questionID string, att flow.Attachment) ocr.Result {
	m.calls++
	return m.result
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
}

func TestForQuestionSelection(t *testing.T) {
	deps := Deps{Actors: &mockSearcher{}, OCR: &mockVerifier{}}
	cases := []struct {
		q    flow.Question
		want string
	}{
		{flow.Question{ID: "a", Type: flow.QuestionFreeText}, "*field.Scalar"},
		{flow.Question{ID: "b", Type: flow.QuestionNumber}, "*field.Scalar"},
		{flow.Question{ID: "c", Type: flow.QuestionChoice}, "*field.ChoiceAdapter"},
		{flow.Question{ID: "d", Type: flow.QuestionFile, FileMode: flow.FileModeImageOCR}, "*field.FileAdapter"},
		{flow.Question{ID: "e", Type: flow.QuestionFreeText, Tag: "actor:supplier"}, "*field.ActorAdapter"},
	}
	for _, tc := range cases {
		got := fmt.Sprintf("%T", ForQuestion(tc.q, deps))
		if got != tc.want {
			t.Errorf("ForQuestion(%s) = %s, want %s", tc.q.ID, got, tc.want)
		}
	}
}

func TestScalarDateDefault(t *testing.T) {
	q := flow.Question{ID: "q-date", Type: flow.QuestionDate, Required: true}
	a := ForQuestion(q, Deps{Now: fixedNow})

	ans, err := a.Normalize("")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ans.Value != "2026-08-29" {
		t.Errorf("default date = %q, want 2026-08-29", ans.Value)
	}
	if !ans.AutoFilled {
		t.Error("default date should be marked auto-filled")
	}

	ans, err = a.Normalize("2026-01-15")
	if err != nil {
		t.Fatalf("Normalize explicit date: %v", err)
	}
	if ans.AutoFilled {
		t.Error("explicit date must not be auto-filled")
	}
}

func TestScalarNumberValidation(t *testing.T) {
	a := ForQuestion(flow.Question{ID: "q-n", Type: flow.QuestionNumber}, Deps{})

	if _, err := a.Normalize("42.5"); err != nil {
		t.Errorf("valid number rejected: %v", err)
	}
	_, err := a.Normalize("cuarenta")
	var verr *flow.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestChoiceNormalize(t *testing.T) {
	q := flow.Question{
		ID: "q1", Type: flow.QuestionChoice, Required: true,
		Choices: []flow.Choice{
			{ID: "c1", Label: "Sí", BranchTo: "q3"},
			{ID: "c2", Label: "No", BranchTo: "q2"},
		},
	}
	a := ForQuestion(q, Deps{}).(*ChoiceAdapter)
	if !a.Immediate() {
		t.Error("choice selection should submit immediately")
	}

	for _, sel := range []string{"c1", "sí", "1"} {
		ans, err := a.Normalize(sel)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", sel, err)
		}
		if ans.ChoiceID != "c1" || ans.BranchTo != "q3" || ans.ChoiceLabel != "Sí" {
			t.Errorf("Normalize(%q) = %+v, want c1/q3", sel, ans)
		}
	}

	if _, err := a.Normalize("c9"); err == nil {
		t.Error("unknown choice accepted")
	}
	if _, err := a.Normalize(""); err == nil {
		t.Error("empty selection accepted")
	}
}

func TestActorSearchTruncatesToTwelve(t *testing.T) {
	var results []Actor
	for i := 0; i < 15; i++ {
		results = append(results, Actor{ID: fmt.Sprintf("act-%d", i), Name: fmt.Sprintf("ACME %d", i), Kind: ActorSupplier})
	}
	search := &mockSearcher{results: results}
	q := flow.Question{ID: "q-sup", Type: flow.QuestionFreeText, Tag: "actor:supplier"}
	a := ForQuestion(q, Deps{Actors: search}).(*ActorAdapter)

	got, err := a.Search(context.Background(), "AC")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != MaxResults {
		t.Errorf("returned %d results, want %d", len(got), MaxResults)
	}
	if search.gotKind != ActorSupplier {
		t.Errorf("search kind = %q, want %q", search.gotKind, ActorSupplier)
	}
	if search.gotQuery != "AC" {
		t.Errorf("search query = %q, want AC", search.gotQuery)
	}
}

func TestActorSearchMinQueryLength(t *testing.T) {
	search := &mockSearcher{}
	a := ForQuestion(flow.Question{ID: "q", Tag: "actor:carrier", Type: flow.QuestionFreeText}, Deps{Actors: search}).(*ActorAdapter)

	if _, err := a.Search(context.Background(), "a"); !errors.Is(err, ErrQueryTooShort) {
		t.Errorf("error = %v, want ErrQueryTooShort", err)
	}
	if search.gotQuery != "" {
		t.Error("catalog contacted for a too-short query")
	}
}

func TestActorSearchErrorLeavesFreeTextUsable(t *testing.T) {
	search := &mockSearcher{err: errors.New("catalog down")}
	a := ForQuestion(flow.Question{ID: "q", Tag: "actor:receiver", Type: flow.QuestionFreeText}, Deps{Actors: search}).(*ActorAdapter)

	if _, err := a.Search(context.Background(), "ACME"); err == nil {
		t.Fatal("expected search error to surface")
	}

	// The field stays usable as free text.
	ans, err := a.Normalize("Transportes del Sur")
	if err != nil {
		t.Fatalf("Normalize fallback: %v", err)
	}
	if ans.Value != "Transportes del Sur" || ans.ActorID != "" {
		t.Errorf("fallback answer = %+v", ans)
	}
}

func TestActorSelectCarriesReference(t *testing.T) {
	a := ForQuestion(flow.Question{ID: "q", Tag: "actor:supplier", Type: flow.QuestionFreeText}, Deps{Actors: &mockSearcher{}}).(*ActorAdapter)

	ans := a.Select(Actor{ID: "act-7", Name: "ACME SA", Kind: ActorSupplier})
	if ans.Value != "ACME SA" || ans.ActorID != "act-7" {
		t.Errorf("Select = %+v", ans)
	}
}

func TestActorKindForTag(t *testing.T) {
	cases := map[string]string{
		"actor:supplier": ActorSupplier,
		"actor:carrier":  ActorCarrier,
		"actor:receiver": ActorReceiver,
		"actor:other":    "",
	}
	for tag, want := range cases {
		if got := ActorKindForTag(tag); got != want {
			t.Errorf("ActorKindForTag(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestFileAdapterRecognizedTextIsEditable(t *testing.T) {
	verifier := &mockVerifier{result: ocr.Result{RecognizedText: "ABC123", Valid: true}}
	q := flow.Question{ID: "q-plate", Type: flow.QuestionFile, FileMode: flow.FileModeImageOCR, Required: true}
	a := ForQuestion(q, Deps{OCR: verifier}).(*FileAdapter)

	att := flow.Attachment{Filename: "plate.jpg", ContentType: "image/jpeg", Content: []byte{1, 2, 3}}
	res := a.Attach(context.Background(), att)
	if !res.Valid || res.RecognizedText != "ABC123" {
		t.Fatalf("Attach = %+v", res)
	}

	// Without edits the suggestion becomes the value.
	ans, err := a.Normalize("")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ans.Value != "ABC123" || ans.AutoFilled {
		t.Errorf("answer = %+v, want ABC123 not auto-filled", ans)
	}
	if len(ans.Attachments) != 1 || ans.Attachments[0].Filename != "plate.jpg" {
		t.Errorf("attachment missing from answer: %+v", ans)
	}

	// Operator corrections win over the recognized text.
	ans, err = a.Normalize("ABD123")
	if err != nil {
		t.Fatalf("Normalize edited: %v", err)
	}
	if ans.Value != "ABD123" {
		t.Errorf("edited value = %q, want ABD123", ans.Value)
	}
}

func TestFileAdapterOCRFailureDegrades(t *testing.T) {
	verifier := &mockVerifier{result: ocr.Result{Valid: false, Message: "verification unavailable"}}
	q := flow.Question{ID: "q-plate", Type: flow.QuestionFile, FileMode: flow.FileModeImageOCR, Required: true}
	a := ForQuestion(q, Deps{OCR: verifier}).(*FileAdapter)

	res := a.Attach(context.Background(), flow.Attachment{Filename: "plate.jpg", Content: []byte{1}})
	if res.Valid {
		t.Fatal("expected failed recognition")
	}

	// Manual entry still works and the file stays attached.
	ans, err := a.Normalize("ABC123")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ans.Value != "ABC123" || len(ans.Attachments) != 1 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestFileAdapterImageOnlySkipsRecognition(t *testing.T) {
	verifier := &mockVerifier{}
	q := flow.Question{ID: "q-photo", Type: flow.QuestionFile, FileMode: flow.FileModeImage}
	a := ForQuestion(q, Deps{OCR: verifier}).(*FileAdapter)

	res := a.Attach(context.Background(), flow.Attachment{Filename: "load.jpg", Content: []byte{1}})
	if !res.Valid {
		t.Errorf("attach-only result = %+v", res)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for image-only question", verifier.calls)
	}
}
