package field

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garitadev/garita/internal/flow"
)

const dateLayout = "2006-01-02"

// Scalar handles free-text, number, and date questions. A blank date is
// auto-populated with today and flagged so the engine accepts it without
// explicit operator interaction.
type Scalar struct {
	q   flow.Question
	now func() time.Time
}

func (a *Scalar) Question() flow.Question { return a.q }

func (a *Scalar) Normalize(input string) (flow.Answer, error) {
	value := strings.TrimSpace(input)

	switch a.q.Type {
	case flow.QuestionNumber:
		if value == "" {
			return flow.Answer{}, nil
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return flow.Answer{}, &flow.ValidationError{QuestionID: a.q.ID, Reason: fmt.Sprintf("%q is not a number", value)}
		}
	case flow.QuestionDate:
		if value == "" {
			return flow.Answer{Value: a.now().Format(dateLayout), AutoFilled: true}, nil
		}
		if _, err := time.Parse(dateLayout, value); err != nil {
			return flow.Answer{}, &flow.ValidationError{QuestionID: a.q.ID, Reason: fmt.Sprintf("%q is not a date (expected YYYY-MM-DD)", value)}
		}
	}

	return flow.Answer{Value: value}, nil
}
