package styles

// Compiled-in defaults for the four shipped camera styles. They make the
// process usable with an empty database and serve as the last layer of the
// prompt resolver chain.
//
// Blend weights are per-adapter tuning values, not knobs exposed to clients.

// DefaultPromptVersion identifies the compiled-in prompt records.
const DefaultPromptVersion = "builtin-v1"

// DefaultDescriptors returns the shipped style set. leica_m and zeiss are
// premium; the other two are free.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:           "hasselblad",
			Name:         "Hasselblad X2D",
			ArtifactPath: "c41_hasselblad_portra400.safetensors",
			BlendWeight:  1.0,
			Tier:         TierFree,
			Active:       true,
		},
		{
			ID:           "leica_m",
			Name:         "Leica M",
			ArtifactPath: "leica_m_style.safetensors",
			BlendWeight:  0.9,
			Tier:         TierPremium,
			Active:       true,
		},
		{
			ID:           "zeiss",
			Name:         "Zeiss Otus",
			ArtifactPath: "zeiss_otus_style.safetensors",
			BlendWeight:  0.95,
			Tier:         TierPremium,
			Active:       true,
		},
		{
			ID:           "fujifilm_gfx",
			Name:         "Fujifilm GFX",
			ArtifactPath: "fujifilm_gfx_style.safetensors",
			BlendWeight:  1.0,
			Tier:         TierFree,
			Active:       true,
		},
	}
}

// defaultPrompts holds the compiled-in prompt text per style.
// This map is the one place in the codebase where prompt text lives in the
// clear; nothing here may be passed to a logger.
var defaultPrompts = map[string]Prompt{
	"hasselblad": {
		Positive: "medium format photography, hasselblad x2d, 100mm lens, f/2.8, " +
			"exceptional sharpness, natural depth of field, professional color grading, " +
			"100 megapixel look",
		Negative: "blurry, noise, distorted, oversaturated, artificial lighting, poor composition",
	},
	"leica_m": {
		Positive: "leica m rangefinder photography, summicron 35mm f/2, high contrast, " +
			"candid moments, street photography, cinematic color, film grain aesthetic",
		Negative: "blurry, oversaturated, hdr, digital look, poor focus",
	},
	"zeiss": {
		Positive: "zeiss otus lens photography, exceptional sharpness, micro contrast, " +
			"t* coating, natural colors, professional studio lighting, commercial photography",
		Negative: "soft focus, blur, chromatic aberration, oversaturated",
	},
	"fujifilm_gfx": {
		Positive: "fujifilm gfx medium format, film simulation, velvia colors, " +
			"large sensor look, professional portrait, natural skin tones, shallow depth of field",
		Negative: "digital, artificial colors, oversaturated, poor composition",
	},
}
