package tenant

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigLoader reads per-journal dotenv files from a directory,
// caching each file for the process lifetime. A missing file is not an
// error: it yields an empty config, and absent keys mean "use the
// global default".
type ConfigLoader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]map[string]string
}

// NewConfigLoader constructs a loader rooted at dir.
func NewConfigLoader(dir string) *ConfigLoader {
	return &ConfigLoader{
		dir:   dir,
		cache: make(map[string]map[string]string),
	}
}

// Path returns the conventional location of a journal's env file.
func (l *ConfigLoader) Path(journal string) string {
	return filepath.Join(l.dir, ".env."+journal)
}

// Exists reports whether the journal's env file is present on disk.
func (l *ConfigLoader) Exists(journal string) bool {
	info, err := os.Stat(l.Path(journal))
	return err == nil && !info.IsDir()
}

// Load returns the journal's key/value overrides. The result is cached
// and must not be mutated by callers.
func (l *ConfigLoader) Load(journal string) (map[string]string, error) {
	l.mu.RLock()
	cached, ok := l.cache[journal]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	values, err := l.read(journal)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[journal] = values
	l.mu.Unlock()
	return values, nil
}

// Secret returns a single key from the journal's config, or "" when
// the key or the whole file is absent.
func (l *ConfigLoader) Secret(journal, key string) string {
	values, err := l.Load(journal)
	if err != nil {
		return ""
	}
	return values[key]
}

func (l *ConfigLoader) read(journal string) (map[string]string, error) {
	path := l.Path(journal)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("parse tenant config %s: %w", path, err)
	}

	values := make(map[string]string)
	for key, value := range k.All() {
		values[key] = fmt.Sprintf("%v", value)
	}
	return values, nil
}
