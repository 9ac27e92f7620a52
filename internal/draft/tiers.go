package draft

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const draftExt = ".draft.json"

// FileTier stores one JSON file per draft key under a directory. The same
// implementation serves both the durable tier (data dir) and the
// session-scoped tier (temp dir cleared by the OS between boots).
type FileTier struct {
	name string
	dir  string
}

// NewFileTier creates a tier rooted at dir. The directory is created lazily
// on the first save so a read-only filesystem only fails writes.
func NewFileTier(name, dir string) *FileTier {
	return &FileTier{name: name, dir: dir}
}

func (t *FileTier) Name() string { return t.name }

func (t *FileTier) path(key string) string {
	// Keys are questionnaire.submission identifier pairs; keep the readable
	// form but neutralize path separators.
	safe := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(t.dir, safe+draftExt)
}

func (t *FileTier) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(t.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *FileTier) Save(key string, data []byte) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	tmp := t.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path(key))
}

func (t *FileTier) Clear(key string) error {
	err := os.Remove(t.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (t *FileTier) Keys() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), draftExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), draftExt))
	}
	return keys, nil
}

// MemoryTier is the last-resort tier: drafts survive only for the lifetime
// of the process.
type MemoryTier struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{data: make(map[string][]byte)}
}

func (t *MemoryTier) Name() string { return "memory" }

func (t *MemoryTier) Load(key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (t *MemoryTier) Save(key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	t.data[key] = cp
	return nil
}

func (t *MemoryTier) Clear(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, key)
	return nil
}

func (t *MemoryTier) Keys() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	return keys, nil
}
