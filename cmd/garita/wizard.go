package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garitadev/garita/internal/config"
	"github.com/garitadev/garita/internal/draft"
	"github.com/garitadev/garita/internal/field"
	"github.com/garitadev/garita/internal/flow"
	"github.com/garitadev/garita/internal/ocr"
)

var fillCmd = &cobra.Command{
	Use:   "fill <questionnaire-id>",
	Short: "Fill a questionnaire interactively",
	Long: `Fill a questionnaire interactively, question by question.

Answers are saved to the server as you go and drafted locally, so an
interrupted session can be resumed. Type "<" at any text prompt to go
back and edit the previous answer.

Examples:
  garita fill chk-in --phase entry --plate ABC123
  garita fill chk-out --phase exit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, _ := cmd.Flags().GetString("phase")
		plate, _ := cmd.Flags().GetString("plate")
		ref, _ := cmd.Flags().GetString("ref")
		fresh, _ := cmd.Flags().GetBool("new")
		return runFill(cmd.Context(), args[0], phase, plate, ref, fresh)
	},
}

func init() {
	fillCmd.Flags().String("phase", "entry", "intake phase (entry or exit)")
	fillCmd.Flags().String("plate", "", "vehicle plate for the new submission")
	fillCmd.Flags().String("ref", "", "regulator reference number")
	fillCmd.Flags().Bool("new", false, "discard any saved draft and start fresh")
}

func runFill(ctx context.Context, questionnaireID, phase, plate, ref string, fresh bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	collab := &httpCollaborator{client: client, plate: plate, regulatorRef: ref}

	sessionDir := cfg.Drafts.SessionDir
	if sessionDir == "" {
		sessionDir = filepath.Join(os.TempDir(), "garita-session")
	}
	drafts := draft.NewStore(filepath.Join(cfg.Storage.DataDir, "drafts"), sessionDir)

	reader := bufio.NewReader(os.Stdin)

	var submissionID string
	resume := false
	if !fresh {
		if d := drafts.Find(questionnaireID); d != nil && !d.Completed {
			printStep("Found a draft from %s (submission %s)",
				d.UpdatedAt.Local().Format("2006-01-02 15:04"), shortID(d.SubmissionID))
			if askYesNo(reader, "Resume previous progress?") {
				submissionID = d.SubmissionID
				resume = true
			}
		}
	}

	eng := flow.NewEngine(collab, drafts)
	res, err := eng.Initialize(ctx, questionnaireID, submissionID, phase, resume)
	if err != nil {
		return err
	}
	if res.Resumed {
		printStep("Resumed submission %s", shortID(res.SubmissionID))
	} else {
		printStep("Started submission %s", shortID(res.SubmissionID))
	}

	deps := field.Deps{
		Actors: &apiActorSearch{client: client},
		OCR:    &apiVerifier{client: client},
	}

	for eng.State() == flow.StateAwaitingInput {
		item := eng.Current()
		if item == nil {
			break
		}

		ans, err := promptAnswer(ctx, reader, *item, deps)
		if errors.Is(err, errGoBack) {
			if err := goBack(eng); err != nil {
				printWarning("Nothing to go back to")
			}
			continue
		}
		if err != nil {
			var vErr *flow.ValidationError
			if errors.As(err, &vErr) {
				printError("%s", vErr.Reason)
				continue
			}
			return err
		}

		if _, err := eng.SubmitCurrent(ctx, ans); err != nil {
			var vErr *flow.ValidationError
			if errors.As(err, &vErr) {
				printError("%s", vErr.Reason)
				continue
			}
			var cErr *flow.CollaboratorError
			if errors.As(err, &cErr) {
				printError("%v", cErr)
				printWarning("Your answer is drafted locally; press enter to retry.")
				readLine(reader)
				continue
			}
			return err
		}
	}

	if eng.State() != flow.StateShowingSummary {
		return nil
	}

	printSummary(eng.Items())
	if !askYesNo(reader, "Finalize this submission?") {
		printWarning("Draft kept; run fill again to resume.")
		return nil
	}
	if err := eng.Finalize(ctx); err != nil {
		return err
	}
	printSuccess("Submission %s finalized", shortID(eng.SubmissionID()))
	return nil
}

// errGoBack is the sentinel a prompt returns when the operator asked to
// edit the previous answer instead of answering.
var errGoBack = errors.New("go back")

func promptAnswer(ctx context.Context, reader *bufio.Reader, item flow.Item, deps field.Deps) (flow.Answer, error) {
	q := item.Question
	adapter := field.ForQuestion(q, deps)

	fmt.Println()
	marker := ""
	if q.Required {
		marker = colorize(colorRed, " *")
	}
	fmt.Printf("%s%s\n", colorize(colorBold, q.Prompt), marker)
	if item.Editing && item.Value != "" {
		fmt.Printf("  current: %s\n", item.Value)
	}

	switch ad := adapter.(type) {
	case *field.ChoiceAdapter:
		for i, c := range q.Choices {
			fmt.Printf("  %d) %s\n", i+1, c.Label)
		}
		input := readLine(reader)
		if input == "<" {
			return flow.Answer{}, errGoBack
		}
		return ad.Normalize(input)

	case *field.ActorAdapter:
		return promptActor(ctx, reader, ad)

	case *field.FileAdapter:
		return promptFile(ctx, reader, ad)

	default:
		input := readLine(reader)
		if input == "<" {
			return flow.Answer{}, errGoBack
		}
		return adapter.Normalize(input)
	}
}

// promptActor searches the partner catalog as the operator types. Prefix
// the input with "=" to record it verbatim, bypassing the catalog.
func promptActor(ctx context.Context, reader *bufio.Reader, ad *field.ActorAdapter) (flow.Answer, error) {
	for {
		fmt.Print("  search: ")
		input := readLine(reader)
		if input == "<" {
			return flow.Answer{}, errGoBack
		}
		if after, ok := strings.CutPrefix(input, "="); ok {
			return ad.Normalize(after)
		}

		results, err := ad.Search(ctx, input)
		if errors.Is(err, field.ErrQueryTooShort) {
			printWarning("Type at least %d characters, or =name to enter it directly", field.MinQueryLen)
			continue
		}
		if err != nil {
			printWarning("Catalog unavailable (%v); recording the name as typed", err)
			return ad.Normalize(input)
		}
		if len(results) == 0 {
			fmt.Printf("  %s\n", field.NoMatchesMessage)
			continue
		}

		for i, a := range results {
			fmt.Printf("  %d) %s (%s)\n", i+1, a.Name, a.Kind)
		}
		fmt.Print("  pick (enter to search again): ")
		sel := readLine(reader)
		if sel == "" {
			continue
		}
		n, err := strconv.Atoi(sel)
		if err != nil || n < 1 || n > len(results) {
			printWarning("Pick a number between 1 and %d", len(results))
			continue
		}
		return ad.Select(results[n-1]), nil
	}
}

// promptFile attaches a document and, when the question asks for it, shows
// the recognized text as an editable suggestion.
func promptFile(ctx context.Context, reader *bufio.Reader, ad *field.FileAdapter) (flow.Answer, error) {
	fmt.Print("  file path (enter to skip): ")
	path := readLine(reader)
	if path == "<" {
		return flow.Answer{}, errGoBack
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return flow.Answer{}, &flow.ValidationError{QuestionID: ad.Question().ID, Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		res := ad.Attach(ctx, flow.Attachment{
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Content:     content,
		})
		if res.RecognizedText != "" {
			fmt.Printf("  recognized: %s\n", colorize(colorGreen, res.RecognizedText))
		} else if res.Message != "" {
			printWarning("%s", res.Message)
		}
	}

	fmt.Print("  value (enter to accept recognized text): ")
	return ad.Normalize(readLine(reader))
}

// goBack moves editing to the most recent saved answer before the current
// question.
func goBack(eng *flow.Engine) error {
	items := eng.Items()
	currentID := eng.CurrentQuestionID()
	prev := ""
	for _, it := range items {
		if it.Question.ID == currentID {
			break
		}
		if it.Status == flow.ItemSaved {
			prev = it.Question.ID
		}
	}
	if prev == "" {
		return errors.New("no earlier answer")
	}
	return eng.NavigateBack(prev)
}

func printSummary(items []flow.Item) {
	fmt.Println()
	fmt.Println(colorize(colorBold, "Summary"))
	for _, it := range items {
		value := it.Value
		if value == "" && len(it.Attachments) > 0 {
			value = it.Attachments[0].Filename
		}
		if value == "" {
			value = "-"
		}
		fmt.Printf("  %s: %s\n", it.Question.Prompt, value)
	}
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func askYesNo(reader *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [Y/n] ", prompt)
	answer := strings.ToLower(readLine(reader))
	return answer == "" || answer == "y" || answer == "yes"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// httpCollaborator drives a submission against the running server.
type httpCollaborator struct {
	client       *apiClient
	plate        string
	regulatorRef string
}

func (c *httpCollaborator) CreateSubmission(ctx context.Context, questionnaireID, phase string) (string, error) {
	body := map[string]string{
		"phase":         phase,
		"plate":         c.plate,
		"regulator_ref": c.regulatorRef,
	}
	resp, err := c.client.post("/questionnaires/"+url.PathEscape(questionnaireID)+"/submissions", body)
	if err != nil {
		return "", err
	}
	var out struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.SubmissionID, nil
}

func (c *httpCollaborator) FirstQuestion(ctx context.Context, questionnaireID string) (flow.Question, error) {
	resp, err := c.client.get("/questionnaires/" + url.PathEscape(questionnaireID) + "/first-question")
	if err != nil {
		return flow.Question{}, err
	}
	var q flow.Question
	if err := decodeJSON(resp, &q); err != nil {
		return flow.Question{}, err
	}
	return q, nil
}

func (c *httpCollaborator) SaveAnswer(ctx context.Context, submissionID, questionID string, ans flow.Answer) (*flow.Question, bool, error) {
	body := map[string]any{
		"question_id": questionID,
		"value":       ans.Value,
		"choice_id":   ans.ChoiceID,
		"actor_id":    ans.ActorID,
		"auto_filled": ans.AutoFilled,
	}
	if len(ans.Attachments) > 0 {
		body["attachments"] = ans.Attachments
	}
	resp, err := c.client.post("/submissions/"+url.PathEscape(submissionID)+"/answers", body)
	if err != nil {
		return nil, false, err
	}
	var out struct {
		Next     *flow.Question `json:"next"`
		Terminal bool           `json:"terminal"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, false, err
	}
	return out.Next, out.Terminal, nil
}

func (c *httpCollaborator) Finalize(ctx context.Context, submissionID string) error {
	resp, err := c.client.post("/submissions/"+url.PathEscape(submissionID)+"/finalize", nil)
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

// apiActorSearch satisfies field.Searcher over the server's catalog
// endpoint.
type apiActorSearch struct {
	client *apiClient
}

func (s *apiActorSearch) Search(ctx context.Context, query, kind string) ([]field.Actor, error) {
	path := fmt.Sprintf("/actors?q=%s&limit=%d", url.QueryEscape(query), field.MaxResults)
	if kind != "" {
		path += "&kind=" + url.QueryEscape(kind)
	}
	resp, err := s.client.get(path)
	if err != nil {
		return nil, err
	}
	var actors []field.Actor
	if err := decodeJSON(resp, &actors); err != nil {
		return nil, err
	}
	return actors, nil
}

// apiVerifier satisfies field.Verifier by delegating recognition to the
// server, so the wizard needs no local access to the verification service.
type apiVerifier struct {
	client *apiClient
}

func (v *apiVerifier) ProcessAttachment(ctx context.Context, questionID string, att flow.Attachment) ocr.Result {
	resp, err := v.client.post("/questions/"+url.PathEscape(questionID)+"/verify", att)
	if err != nil {
		return ocr.Result{Valid: false, Message: "verification unavailable, enter the value manually"}
	}
	var res ocr.Result
	if err := decodeJSON(resp, &res); err != nil {
		return ocr.Result{Valid: false, Message: "verification unavailable, enter the value manually"}
	}
	return res
}
