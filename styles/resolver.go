package styles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Prompt is one resolved positive/negative prompt pair. Prompt text is the
// system's protected asset: a Prompt value must never be handed to a logger,
// a journal row, or an HTTP response. Callers log the version and layer only.
type Prompt struct {
	Positive string
	Negative string
	// Version identifies the record that produced this prompt
	Version string
	// Layer names the resolver layer that matched ("override", "database", "default")
	Layer string
}

// PromptSource is one layer in the resolution chain. Lookup returns
// (prompt, true) on a hit; a miss is (zero, false, nil). Errors are reserved
// for infrastructure failures (broken file, dead database), which fail the
// whole resolution rather than silently falling through.
type PromptSource interface {
	// Name identifies the layer in logs.
	Name() string
	// Lookup attempts to resolve a prompt for (styleID, version).
	Lookup(ctx context.Context, styleID, version string) (Prompt, bool, error)
}

// PromptResolver walks an ordered chain of sources, first match wins.
// The production chain is override → database → compiled-in default.
type PromptResolver struct {
	chain  []PromptSource
	logger *zap.Logger
}

// NewPromptResolver builds a resolver over the given chain, tried in order.
func NewPromptResolver(logger *zap.Logger, chain ...PromptSource) *PromptResolver {
	return &PromptResolver{
		chain:  chain,
		logger: logger.Named("prompts"),
	}
}

// Resolve returns the prompt for a style at a given version. An empty
// version means "latest" for layers that understand versions.
//
// Only the style id, version, and matching layer are logged. The resolved
// text itself is never logged at any level.
func (pr *PromptResolver) Resolve(ctx context.Context, styleID, version string) (Prompt, error) {
	for _, src := range pr.chain {
		p, ok, err := src.Lookup(ctx, styleID, version)
		if err != nil {
			return Prompt{}, fmt.Errorf("styles: prompt layer %s: %w", src.Name(), err)
		}
		if ok {
			p.Layer = src.Name()
			pr.logger.Debug("prompt resolved",
				zap.String("style_id", styleID),
				zap.String("prompt_version", p.Version),
				zap.String("prompt_layer", p.Layer))
			return p, nil
		}
	}
	return Prompt{}, fmt.Errorf("%w: %s (version %q)", ErrPromptNotFound, styleID, version)
}

// ---------------------------------------------------------------------------
// Layer 1: per-deployment override file

// overrideVersion marks prompts that came from the deployment override file.
const overrideVersion = "override"

// OverrideSource reads a git-ignored JSON file mapping style id to prompt
// pair. It is loaded once at construction; operators edit the file and
// trigger a style reload to pick up changes.
//
// File format:
//
//	{"hasselblad": {"positive": "...", "negative": "..."}}
type OverrideSource struct {
	prompts map[string]Prompt
}

type overrideEntry struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// NewOverrideSource loads the override file. A missing file is not an error;
// it yields an empty source that never matches, so deployments without
// overrides need no placeholder file.
func NewOverrideSource(path string) (*OverrideSource, error) {
	src := &OverrideSource{prompts: map[string]Prompt{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return src, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read override file: %w", err)
	}

	var raw map[string]overrideEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse override file %s: %w", path, err)
	}
	for id, e := range raw {
		src.prompts[strings.ToLower(id)] = Prompt{
			Positive: e.Positive,
			Negative: e.Negative,
			Version:  overrideVersion,
		}
	}
	return src, nil
}

// Name implements PromptSource.
func (s *OverrideSource) Name() string { return "override" }

// Lookup implements PromptSource. Overrides ignore the requested version:
// an operator override beats every versioned record by definition.
func (s *OverrideSource) Lookup(_ context.Context, styleID, _ string) (Prompt, bool, error) {
	p, ok := s.prompts[strings.ToLower(styleID)]
	return p, ok, nil
}

// ---------------------------------------------------------------------------
// Layer 2: versioned database records

// PromptStore is the persistence lookup for versioned prompt records.
// Implemented by the db package.
type PromptStore interface {
	// GetPrompt returns the record for (styleID, version). An empty version
	// selects the latest version for the style. A missing record returns
	// found=false with a nil error.
	GetPrompt(ctx context.Context, styleID, version string) (positive, negative, recordVersion string, found bool, err error)
}

// StoreSource adapts a PromptStore into the resolver chain.
type StoreSource struct {
	store PromptStore
}

// NewStoreSource wraps a PromptStore. A nil store yields a source that never
// matches, which keeps the chain shape fixed in tests.
func NewStoreSource(store PromptStore) *StoreSource {
	return &StoreSource{store: store}
}

// Name implements PromptSource.
func (s *StoreSource) Name() string { return "database" }

// Lookup implements PromptSource.
func (s *StoreSource) Lookup(ctx context.Context, styleID, version string) (Prompt, bool, error) {
	if s.store == nil {
		return Prompt{}, false, nil
	}
	pos, neg, ver, found, err := s.store.GetPrompt(ctx, styleID, version)
	if err != nil || !found {
		return Prompt{}, false, err
	}
	return Prompt{Positive: pos, Negative: neg, Version: ver}, true, nil
}

// ---------------------------------------------------------------------------
// Layer 3: compiled-in defaults

// DefaultSource serves the compiled-in prompt set. It is the terminal layer:
// it matches every shipped style regardless of requested version, so a fresh
// deployment renders correctly before any database row exists.
type DefaultSource struct{}

// Name implements PromptSource.
func (DefaultSource) Name() string { return "default" }

// Lookup implements PromptSource.
func (DefaultSource) Lookup(_ context.Context, styleID, _ string) (Prompt, bool, error) {
	p, ok := defaultPrompts[strings.ToLower(styleID)]
	if !ok {
		return Prompt{}, false, nil
	}
	p.Version = DefaultPromptVersion
	return p, true, nil
}
