package field

import (
	"strconv"
	"strings"

	"github.com/garitadev/garita/internal/flow"
)

// ChoiceAdapter resolves a selection to its choice and carries the branch
// hint along. Branch resolution itself stays on the server. Selecting a
// choice submits immediately; there is no separate confirm step.
type ChoiceAdapter struct {
	q flow.Question
}

func (a *ChoiceAdapter) Question() flow.Question { return a.q }

// Immediate reports that a resolved choice should be submitted without a
// confirm step.
func (a *ChoiceAdapter) Immediate() bool { return true }

// Normalize accepts a choice ID, a label (case-insensitive), or a 1-based
// position.
func (a *ChoiceAdapter) Normalize(input string) (flow.Answer, error) {
	sel := strings.TrimSpace(input)
	if sel == "" {
		return flow.Answer{}, &flow.ValidationError{QuestionID: a.q.ID, Reason: "a choice must be selected"}
	}

	if c, ok := a.resolve(sel); ok {
		return flow.Answer{
			Value:       c.Label,
			ChoiceID:    c.ID,
			ChoiceLabel: c.Label,
			BranchTo:    c.BranchTo,
		}, nil
	}
	return flow.Answer{}, &flow.ValidationError{QuestionID: a.q.ID, Reason: "unknown choice " + strconv.Quote(sel)}
}

func (a *ChoiceAdapter) resolve(sel string) (flow.Choice, bool) {
	for _, c := range a.q.Choices {
		if c.ID == sel || strings.EqualFold(c.Label, sel) {
			return c, true
		}
	}
	if n, err := strconv.Atoi(sel); err == nil && n >= 1 && n <= len(a.q.Choices) {
		return a.q.Choices[n-1], true
	}
	return flow.Choice{}, false
}
