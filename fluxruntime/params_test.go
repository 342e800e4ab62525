package fluxruntime

import (
	"errors"
	"testing"
)

func TestClampStrength(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"unset becomes default", 0, DefaultStrength},
		{"below window", 0.1, MinStrength},
		{"above window", 0.9, MaxStrength},
		{"in window", 0.33, 0.33},
		{"at min", MinStrength, MinStrength},
		{"at max", MaxStrength, MaxStrength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampStrength(tt.in); got != tt.want {
				t.Errorf("ClampStrength(%.2f) = %.2f, want %.2f", tt.in, got, tt.want)
			}
		})
	}
}

func validParams() RenderParams {
	return RenderParams{
		InitImage:     []byte{1, 2, 3},
		Prompt:        "medium format photography",
		Width:         512,
		Height:        512,
		Strength:      0.35,
		Steps:         4,
		GuidanceScale: 1.0,
		Seed:          7,
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RenderParams)
		ok     bool
	}{
		{"valid", func(*RenderParams) {}, true},
		{"empty init image", func(p *RenderParams) { p.InitImage = nil }, false},
		{"empty prompt", func(p *RenderParams) { p.Prompt = "" }, false},
		{"width not multiple of 8", func(p *RenderParams) { p.Width = 513 }, false},
		{"width too small", func(p *RenderParams) { p.Width = 64 }, false},
		{"height too large", func(p *RenderParams) { p.Height = 4096 }, false},
		{"strength below window", func(p *RenderParams) { p.Strength = 0.2 }, false},
		{"strength above window", func(p *RenderParams) { p.Strength = 0.5 }, false},
		{"zero steps", func(p *RenderParams) { p.Steps = 0 }, false},
		{"too many steps", func(p *RenderParams) { p.Steps = 50 }, false},
		{"negative seed", func(p *RenderParams) { p.Seed = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := ValidateParams(p)
			if tt.ok && err != nil {
				t.Errorf("ValidateParams = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("ValidateParams = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestRandomSeedNonNegative(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if s := RandomSeed(); s < 0 {
			t.Fatalf("RandomSeed returned negative value %d", s)
		}
	}
}
