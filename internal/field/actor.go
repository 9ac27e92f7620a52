package field

import (
	"context"
	"errors"
	"strings"

	"github.com/garitadev/garita/internal/flow"
)

// Actor is a business-partner catalog entry.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Actor catalog kinds, matching the regulator's partner taxonomy.
const (
	ActorSupplier = "PROVEEDOR"
	ActorCarrier  = "TRANSPORTISTA"
	ActorReceiver = "DESTINATARIO"
)

const actorTagPrefix = "actor:"

// ActorKindForTag maps a question's semantic tag to the catalog kind used
// for server-side filtering. An unknown sub-type searches unfiltered.
func ActorKindForTag(tag string) string {
	switch strings.TrimPrefix(tag, actorTagPrefix) {
	case "supplier":
		return ActorSupplier
	case "carrier":
		return ActorCarrier
	case "receiver":
		return ActorReceiver
	}
	return ""
}

// MinQueryLen is the shortest query forwarded to the catalog.
const MinQueryLen = 2

// MaxResults caps how many matches are shown; the catalog may return more.
const MaxResults = 12

// ErrQueryTooShort is returned for queries below MinQueryLen.
var ErrQueryTooShort = errors.New("query too short")

// NoMatchesMessage is the distinct empty-result message shown when a valid
// search finds nothing.
const NoMatchesMessage = "no matching partners found"

// ActorAdapter backs actor-lookup questions: search-as-you-type against
// the catalog with a free-text fallback, so a catalog outage never blocks
// the form.
type ActorAdapter struct {
	q      flow.Question
	search Searcher
	kind   string
}

func (a *ActorAdapter) Question() flow.Question { return a.q }

// Kind returns the catalog kind derived from the question's semantic tag.
func (a *ActorAdapter) Kind() string { return a.kind }

// Search queries the catalog, truncating to MaxResults. The stale-response
// rule is the caller's concern: capture the current question ID before
// calling and discard the results on mismatch.
func (a *ActorAdapter) Search(ctx context.Context, query string) ([]Actor, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLen {
		return nil, ErrQueryTooShort
	}
	results, err := a.search.Search(ctx, query, a.kind)
	if err != nil {
		return nil, err
	}
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}

// Select normalizes a picked catalog entry: display name plus the opaque
// actor reference.
func (a *ActorAdapter) Select(actor Actor) flow.Answer {
	return flow.Answer{Value: actor.Name, ActorID: actor.ID}
}

// Normalize is the free-text fallback used when the catalog is
// unavailable or the operator types a name directly.
func (a *ActorAdapter) Normalize(input string) (flow.Answer, error) {
	return flow.Answer{Value: strings.TrimSpace(input)}, nil
}
