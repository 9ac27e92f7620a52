// Package draft persists in-progress submission snapshots across layered
// storage tiers, degrading silently when a tier is unavailable. Losing a
// draft is acceptable; interrupting the operator mid-form is not.
package draft

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/garitadev/garita/internal/flow"
)

// Tier is one storage layer. Load returns (nil, nil) when the key is
// absent. Implementations are expected to fail; the store works around
// them.
type Tier interface {
	Name() string
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Clear(key string) error
	Keys() ([]string, error)
}

// Store reads and writes drafts through an ordered list of tiers: the
// first is the most durable, the last always works. It satisfies
// flow.DraftStore.
type Store struct {
	tiers  []Tier
	logger *slog.Logger
}

// NewStore builds the standard three-tier store: durable files under
// dataDir, session-scoped files under sessionDir, and an in-memory
// fallback for when neither directory is writable.
func NewStore(dataDir, sessionDir string) *Store {
	return NewStoreWithTiers(
		NewFileTier("file", dataDir),
		NewFileTier("session", sessionDir),
		NewMemoryTier(),
	)
}

// NewStoreWithTiers builds a store over an explicit tier list, highest
// priority first.
func NewStoreWithTiers(tiers ...Tier) *Store {
	return &Store{tiers: tiers, logger: slog.Default()}
}

// Load returns the draft for key from the highest tier that has a readable
// copy, or nil when no tier does. It never fails.
func (s *Store) Load(key string) *flow.Draft {
	for _, t := range s.tiers {
		data, err := t.Load(key)
		if err != nil {
			s.logger.Debug("draft tier read failed", "tier", t.Name(), "key", key, "error", err)
			continue
		}
		if data == nil {
			continue
		}
		var d flow.Draft
		if err := json.Unmarshal(data, &d); err != nil {
			s.logger.Debug("draft tier held corrupt data", "tier", t.Name(), "key", key, "error", err)
			continue
		}
		return &d
	}
	return nil
}

// Save writes the draft to the highest tier that accepts it. Failures fall
// through to the next tier and are never surfaced.
func (s *Store) Save(key string, d *flow.Draft) {
	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Debug("draft not serializable", "key", key, "error", err)
		return
	}
	for _, t := range s.tiers {
		if err := t.Save(key, data); err != nil {
			s.logger.Debug("draft tier write failed", "tier", t.Name(), "key", key, "error", err)
			continue
		}
		return
	}
}

// Clear removes the draft from every tier. Idempotent; absent keys and
// unavailable tiers are not errors.
func (s *Store) Clear(key string) {
	for _, t := range s.tiers {
		if err := t.Clear(key); err != nil {
			s.logger.Debug("draft tier clear failed", "tier", t.Name(), "key", key, "error", err)
		}
	}
}

// Find returns the most recently touched draft for a questionnaire, across
// all tiers. It backs the "resume previous progress?" prompt shown before a
// session is initialized, when the submission ID is not yet known.
func (s *Store) Find(questionnaireID string) *flow.Draft {
	prefix := questionnaireID + "."
	var newest *flow.Draft
	seen := make(map[string]bool)
	for _, t := range s.tiers {
		keys, err := t.Keys()
		if err != nil {
			s.logger.Debug("draft tier listing failed", "tier", t.Name(), "error", err)
			continue
		}
		for _, key := range keys {
			if !strings.HasPrefix(key, prefix) || seen[key] {
				continue
			}
			seen[key] = true
			d := s.Load(key)
			if d == nil || d.QuestionnaireID != questionnaireID {
				continue
			}
			if newest == nil || d.UpdatedAt.After(newest.UpdatedAt) {
				newest = d
			}
		}
	}
	return newest
}
