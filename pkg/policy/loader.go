package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Sources names where actor policies and advisory rules come from.
// An empty PolicyFile means the built-in policies.
type Sources struct {
	PolicyFile   string
	RulesDir     string
	Orchestrator string
	BuiltinRules bool
}

// Loader reads actor policies and Rego rules from disk.
type Loader struct {
	logger  zerolog.Logger
	cache   map[string]*Rule
	mu      sync.RWMutex
	watcher *fsnotify.Watcher

	// ReloadDelay debounces bursts of file events. Defaults to 500ms.
	ReloadDelay time.Duration
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "policy-loader").Logger(),
		cache:       make(map[string]*Rule),
		ReloadDelay: 500 * time.Millisecond,
	}
}

// Load resolves the actor policy set and the rule list for src.
func (l *Loader) Load(src Sources) (*Set, []Rule, error) {
	var set *Set
	if src.PolicyFile == "" {
		set = DefaultSet(src.Orchestrator)
	} else {
		s, err := l.LoadActorPolicies(src.PolicyFile, src.Orchestrator)
		if err != nil {
			return nil, nil, err
		}
		set = s
	}

	var rules []Rule
	if src.BuiltinRules {
		rules = append(rules, BuiltinRules()...)
	}
	if src.RulesDir != "" {
		dirRules, err := l.LoadRules(src.RulesDir)
		if err != nil {
			return nil, nil, err
		}
		rules = append(rules, dirRules...)
	}

	return set, rules, nil
}

// LoadActorPolicies parses a YAML policy document. The document's orchestrator
// wins over the fallback when both are set.
func (l *Loader) LoadActorPolicies(path, fallbackOrchestrator string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	orchestrator := doc.Orchestrator
	if orchestrator == "" {
		orchestrator = fallbackOrchestrator
	}
	if orchestrator == "" {
		orchestrator = ActorOrchestrator
	}

	set, err := NewSet(orchestrator, doc.Actors)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}

	l.logger.Debug().
		Str("path", path).
		Int("actors", set.Len()).
		Msg("Actor policies loaded")

	return set, nil
}

// LoadRules loads all .rego files under dir, sorted by path.
func (l *Loader) LoadRules(dir string) ([]Rule, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".rego") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk rules directory: %w", err)
	}
	sort.Strings(paths)

	rules := make([]Rule, 0, len(paths))
	for _, path := range paths {
		rule, err := l.loadRuleFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load rule file")
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

func (l *Loader) loadRuleFile(path string) (*Rule, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rule := &Rule{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Enabled:     true,
		Source:      path,
	}

	l.mu.Lock()
	l.cache[path] = rule
	l.mu.Unlock()

	return rule, nil
}

// extractDescription returns the leading comment block of a Rego file.
func extractDescription(content string) string {
	var description strings.Builder
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment == "" {
				continue
			}
			if description.Len() > 0 {
				description.WriteString(" ")
			}
			description.WriteString(comment)
		} else if trimmed != "" {
			break
		}
	}
	return description.String()
}

// Watch reloads src whenever the policy file or a rule file changes, passing the
// result to apply. Reload failures are logged and the previous state stays in effect.
// Watching stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, src Sources, apply func(*Set, []Rule) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	if src.PolicyFile != "" {
		// Editors often replace files, so watch the directory and filter by name.
		if err := watcher.Add(filepath.Dir(src.PolicyFile)); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", src.PolicyFile, err)
		}
		watched++
	}
	if src.RulesDir != "" {
		err := filepath.WalkDir(src.RulesDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				watched++
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch rules directory: %w", err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, src, apply)

	l.logger.Info().Int("paths", watched).Msg("Started watching policy sources")
	return nil
}

func (l *Loader) relevant(src Sources, name string) bool {
	if src.PolicyFile != "" && filepath.Clean(name) == filepath.Clean(src.PolicyFile) {
		return true
	}
	return src.RulesDir != "" && strings.HasSuffix(name, ".rego")
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, src Sources, apply func(*Set, []Rule) error) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !l.relevant(src, event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy source changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(l.ReloadDelay, func() {
				if err := l.reload(src, apply); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(src Sources, apply func(*Set, []Rule) error) error {
	set, rules, err := l.Load(src)
	if err != nil {
		return err
	}
	if err := apply(set, rules); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}

	l.logger.Info().
		Int("actors", set.Len()).
		Int("rules", len(rules)).
		Msg("Policies reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

// ClearCache clears the rule file cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]*Rule)
}
