package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads prompt fragments from user-editable files on disk,
// falling back to embedded defaults.
//
// The store initialises lazily: the directory and default files are only
// written on the first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	overrides map[string]string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptSystemPreamble: `You are the trip assistant for a group travel app. Answer the traveller's question using only the trip context below. The context is a snapshot; if it does not contain the answer, say so rather than guessing.`,

	driven.PromptOutputContract: `Respond in plain text of at most 120 words. Quote times, amounts and names exactly as they appear in the context. When you rely on a knowledge-base excerpt, cite it by its title in square brackets. If a section was unavailable and it matters to the answer, say that the information could not be loaded.`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.tripctx/prompts/.
//
// The constructor does not perform any I/O.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".tripctx", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		overrides: make(map[string]string),
		cache:     make(map[string]string),
	}, nil
}

// Override reads the named prompt from path instead of the prompt directory.
// A missing override file is an error; it never falls back to the default.
func (s *PromptStore) Override(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[name] = path
	delete(s.cache, name)
}

// Load returns the prompt for the given name.
func (s *PromptStore) Load(name string) (string, error) {
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	override, hasOverride := s.overrides[name]
	s.mu.RUnlock()

	var (
		prompt string
		err    error
	)
	if hasOverride {
		prompt, err = readPrompt(override)
		if err != nil {
			return "", fmt.Errorf("load prompt %q from %s: %w", name, override, err)
		}
	} else {
		s.initOnce.Do(s.initialise)
		prompt, err = s.loadFromDir(name)
		if err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

func (s *PromptStore) loadFromDir(name string) (string, error) {
	if s.initErr == nil {
		prompt, err := readPrompt(filepath.Join(s.promptDir, name+".txt"))
		if err == nil && prompt != "" {
			return prompt, nil
		}
	}
	if prompt, ok := defaultPrompts[name]; ok {
		return prompt, nil
	}
	if s.initErr != nil {
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}
	return "", fmt.Errorf("load prompt %q: no such prompt", name)
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# tripctx prompts

These files shape the prompts tripctx assembles for the model.

## Files

- ` + "`system_preamble.txt`" + ` - Opens every prompt
- ` + "`output_contract.txt`" + ` - Output-format instruction, always placed last and never truncated

## Customisation

Edit a file to change the wording. Changes take effect on the next command.
An empty file falls back to the built-in text. The output contract must fit
within prompt.max_chars or queries fail with invalid input.
`
	return os.WriteFile(path, []byte(content), 0600)
}
