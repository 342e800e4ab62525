package styles

import "errors"

// Sentinel errors for registry and resolver operations.
var (
	// ErrStyleNotFound means the style id does not exist or is inactive
	ErrStyleNotFound = errors.New("styles: style not found")

	// ErrForbidden means the style exists but the caller's tier may not use it.
	// Deliberately distinct from ErrStyleNotFound: a free caller naming a
	// premium style learns the style exists, just not for them.
	ErrForbidden = errors.New("styles: style not available at caller tier")

	// ErrInvalidDescriptor means a registry row failed validation on load
	ErrInvalidDescriptor = errors.New("styles: invalid style descriptor")

	// ErrPromptNotFound means no resolver layer produced a prompt for the
	// requested (style, version) pair
	ErrPromptNotFound = errors.New("styles: no prompt for style")
)
