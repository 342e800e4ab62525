package fluxruntime

import "fmt"

// RenderParams holds everything one img2img render needs. The style adapter
// is not here: it is accelerator state, applied via EnsureStyle before Infer.
type RenderParams struct {
	// InitImage is the already-validated source image (PNG or JPEG bytes)
	InitImage []byte
	// Prompt is the resolved positive prompt text
	Prompt string
	// NegativePrompt is the resolved negative prompt text
	NegativePrompt string
	// Width and Height are the output pixel dimensions
	Width  int
	Height int
	// Strength is the denoising strength; clamped to [MinStrength, MaxStrength]
	Strength float64
	// Steps is the number of inference steps (FLUX.1-Schnell renders in 1-4)
	Steps int
	// GuidanceScale is the CFG scale (FLUX.1-Schnell uses 1.0)
	GuidanceScale float64
	// Seed drives the noise sampler. Must be non-negative and explicit by the
	// time Infer runs; the engine generates one when the caller supplied none.
	Seed int64
}

// Parameter bounds.
const (
	// MinStrength and MaxStrength bound the denoising strength. The window is
	// deliberately tight: below 0.30 the style barely registers, above 0.40
	// the subject starts to dissolve.
	MinStrength     = 0.30
	MaxStrength     = 0.40
	DefaultStrength = 0.35

	MinImageSize      = 128
	MaxImageSize      = 2048
	ImageSizeMultiple = 8 // output dimensions must be divisible by this

	MinSteps     = 1
	MaxSteps     = 8
	DefaultSteps = 4

	DefaultGuidanceScale = 1.0

	MaxPromptLength = 1000
)

// ClampStrength forces a denoising strength into the allowed window.
// Zero (unset) becomes the default rather than the minimum.
func ClampStrength(s float64) float64 {
	if s == 0 {
		return DefaultStrength
	}
	if s < MinStrength {
		return MinStrength
	}
	if s > MaxStrength {
		return MaxStrength
	}
	return s
}

// ValidateParams checks render parameters. Pure function, no side effects.
func ValidateParams(p RenderParams) error {
	if len(p.InitImage) == 0 {
		return fmt.Errorf("%w: empty init image", ErrInvalidParams)
	}
	if p.Prompt == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidParams)
	}
	if len(p.Prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.Prompt), MaxPromptLength)
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}
	if p.Width < MinImageSize || p.Width > MaxImageSize {
		return fmt.Errorf("%w: width %d must be between %d and %d",
			ErrInvalidParams, p.Width, MinImageSize, MaxImageSize)
	}
	if p.Width%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: width %d must be divisible by %d",
			ErrInvalidParams, p.Width, ImageSizeMultiple)
	}
	if p.Height < MinImageSize || p.Height > MaxImageSize {
		return fmt.Errorf("%w: height %d must be between %d and %d",
			ErrInvalidParams, p.Height, MinImageSize, MaxImageSize)
	}
	if p.Height%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: height %d must be divisible by %d",
			ErrInvalidParams, p.Height, ImageSizeMultiple)
	}
	if p.Strength < MinStrength || p.Strength > MaxStrength {
		return fmt.Errorf("%w: strength %.2f outside [%.2f, %.2f]",
			ErrInvalidParams, p.Strength, MinStrength, MaxStrength)
	}
	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}
	if p.Seed < 0 {
		return fmt.Errorf("%w: seed must be non-negative by render time", ErrInvalidParams)
	}
	return nil
}
