package styles

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// Loader fetches the current style set from persistence. Implemented by the
// db package; a fake suffices in tests.
type Loader interface {
	// LoadStyles returns all style rows, active or not.
	LoadStyles(ctx context.Context) ([]Descriptor, error)
}

// Registry is the read-mostly style catalog. Lookups read an immutable
// snapshot through an atomic pointer, so request-path reads never contend
// with each other or with reloads. Reload builds a fresh snapshot off to the
// side and swaps it in one store; the scheduler serializes that swap against
// the accelerator session so a render never observes a half-reloaded catalog.
type Registry struct {
	snapshot atomic.Pointer[snapshot]
	loader   Loader
	logger   *zap.Logger
}

// snapshot is one immutable view of the catalog. Only active styles are
// indexed; inactive rows are dropped at build time.
type snapshot struct {
	byID    map[string]Descriptor
	ordered []Descriptor // stable listing order (by id)
}

// NewRegistry creates a registry seeded with the compiled-in default styles.
// Call Reload after the database is open to replace the seed snapshot.
func NewRegistry(loader Loader, logger *zap.Logger) *Registry {
	r := &Registry{
		loader: loader,
		logger: logger.Named("styles"),
	}
	snap, err := buildSnapshot(DefaultDescriptors())
	if err != nil {
		// Compiled-in defaults are validated by tests; this cannot fail at
		// runtime, but fall back to an empty catalog rather than panic.
		snap = &snapshot{byID: map[string]Descriptor{}}
	}
	r.snapshot.Store(snap)
	return r
}

// Reload replaces the snapshot from the loader. On any error the previous
// snapshot stays in place, so a bad reload never takes styles offline.
func (r *Registry) Reload(ctx context.Context) error {
	if r.loader == nil {
		return fmt.Errorf("styles: registry has no loader")
	}

	rows, err := r.loader.LoadStyles(ctx)
	if err != nil {
		return fmt.Errorf("styles: load: %w", err)
	}

	snap, err := buildSnapshot(rows)
	if err != nil {
		return err
	}

	r.snapshot.Store(snap)
	r.logger.Info("style registry reloaded",
		zap.Int("styles", len(snap.ordered)))
	return nil
}

// buildSnapshot validates rows and indexes the active ones.
func buildSnapshot(rows []Descriptor) (*snapshot, error) {
	snap := &snapshot{byID: make(map[string]Descriptor, len(rows))}
	for _, d := range rows {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if !d.Active {
			continue
		}
		if _, dup := snap.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate style id %s", ErrInvalidDescriptor, d.ID)
		}
		snap.byID[d.ID] = d
		snap.ordered = append(snap.ordered, d)
	}
	sort.Slice(snap.ordered, func(i, j int) bool {
		return snap.ordered[i].ID < snap.ordered[j].ID
	})
	return snap, nil
}

// List returns the active styles visible to a caller at the given tier.
// Free callers see only free styles; premium callers see everything.
func (r *Registry) List(callerTier Tier) []Descriptor {
	snap := r.snapshot.Load()
	out := make([]Descriptor, 0, len(snap.ordered))
	for _, d := range snap.ordered {
		if d.Allowed(callerTier) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve returns the descriptor for a style id, or ErrStyleNotFound.
// Resolve performs no tier check; use Authorize on the request path.
func (r *Registry) Resolve(styleID string) (Descriptor, error) {
	snap := r.snapshot.Load()
	d, ok := snap.byID[styleID]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrStyleNotFound, styleID)
	}
	return d, nil
}

// Authorize resolves a style and checks the caller's tier against it.
// Unknown styles return ErrStyleNotFound; known-but-gated styles return
// ErrForbidden. The distinction is part of the public error contract.
func (r *Registry) Authorize(styleID string, callerTier Tier) (Descriptor, error) {
	d, err := r.Resolve(styleID)
	if err != nil {
		return Descriptor{}, err
	}
	if !d.Allowed(callerTier) {
		return Descriptor{}, fmt.Errorf("%w: %s requires %s tier", ErrForbidden, styleID, d.Tier)
	}
	return d, nil
}

// Count returns the number of active styles in the current snapshot.
func (r *Registry) Count() int {
	return len(r.snapshot.Load().ordered)
}
