package validation

import (
	"os"
	"path/filepath"
	"testing"
)

// validInputs builds an Inputs with everything present on disk.
func validInputs(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()

	modelPath := filepath.Join(dir, "flux-base.safetensors")
	if err := os.WriteFile(modelPath, []byte("model"), 0644); err != nil {
		t.Fatalf("failed to create model file: %v", err)
	}

	adapterDir := filepath.Join(dir, "adapters")
	if err := os.Mkdir(adapterDir, 0755); err != nil {
		t.Fatalf("failed to create adapter dir: %v", err)
	}
	for _, name := range []string{"hasselblad.safetensors", "leica_m.safetensors"} {
		if err := os.WriteFile(filepath.Join(adapterDir, name), []byte("adapter"), 0644); err != nil {
			t.Fatalf("failed to create adapter file: %v", err)
		}
	}

	return Inputs{
		EnvPath:      filepath.Join(dir, ".env"),
		ModelPath:    modelPath,
		AdapterDir:   adapterDir,
		AdapterFiles: []string{"hasselblad.safetensors", "leica_m.safetensors"},
		DatabasePath: filepath.Join(dir, "data", "jobs.db"),
		ArtifactDir:  filepath.Join(dir, "artifacts"),
		ListenAddr:   "127.0.0.1:8080",
	}
}

func TestConfigValidator_CheckEnvFile(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(t *testing.T) string // returns env path
		wantValid bool
	}{
		{
			name: "env file exists",
			setupFunc: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), ".env")
				if err := os.WriteFile(path, []byte("TEST=value"), 0644); err != nil {
					t.Fatalf("failed to create test file: %v", err)
				}
				return path
			},
			wantValid: true,
		},
		{
			name: "env file missing is still valid",
			setupFunc: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nonexistent.env")
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := validInputs(t)
			inputs.EnvPath = tt.setupFunc(t)
			v := NewConfigValidator(inputs)
			result := v.CheckEnvFile()

			if result.Valid != tt.wantValid {
				t.Errorf("CheckEnvFile() Valid = %v, want %v", result.Valid, tt.wantValid)
			}
		})
	}
}

func TestConfigValidator_CheckModelArtifact(t *testing.T) {
	t.Run("model present", func(t *testing.T) {
		v := NewConfigValidator(validInputs(t))
		result := v.CheckModelArtifact()
		if !result.Valid {
			t.Errorf("CheckModelArtifact() Valid = false, want true: %v", result.Error)
		}
	})

	t.Run("model missing", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.ModelPath = filepath.Join(t.TempDir(), "missing.safetensors")
		result := NewConfigValidator(inputs).CheckModelArtifact()
		if result.Valid {
			t.Error("CheckModelArtifact() Valid = true, want false")
		}
		if result.Error == nil {
			t.Fatal("CheckModelArtifact() expected error")
		}
	})

	t.Run("empty path means remote backend", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.ModelPath = ""
		result := NewConfigValidator(inputs).CheckModelArtifact()
		if !result.Valid {
			t.Error("CheckModelArtifact() Valid = false, want true for remote backend")
		}
	})
}

func TestConfigValidator_CheckAdapterArtifacts(t *testing.T) {
	t.Run("all adapters present", func(t *testing.T) {
		v := NewConfigValidator(validInputs(t))
		result := v.CheckAdapterArtifacts()
		if !result.Valid {
			t.Errorf("CheckAdapterArtifacts() Valid = false, want true: %v", result.Error)
		}
	})

	t.Run("adapter dir missing", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.AdapterDir = filepath.Join(t.TempDir(), "nope")
		result := NewConfigValidator(inputs).CheckAdapterArtifacts()
		if result.Valid {
			t.Error("CheckAdapterArtifacts() Valid = true, want false")
		}
	})

	t.Run("one adapter missing", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.AdapterFiles = append(inputs.AdapterFiles, "phantom.safetensors")
		result := NewConfigValidator(inputs).CheckAdapterArtifacts()
		if result.Valid {
			t.Error("CheckAdapterArtifacts() Valid = true, want false")
		}
		if result.Error == nil {
			t.Fatal("CheckAdapterArtifacts() expected error")
		}
	})

	t.Run("no adapters declared", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.AdapterFiles = nil
		result := NewConfigValidator(inputs).CheckAdapterArtifacts()
		if !result.Valid {
			t.Errorf("CheckAdapterArtifacts() Valid = false, want true: %v", result.Error)
		}
	})
}

func TestConfigValidator_CheckDatabasePath(t *testing.T) {
	t.Run("parent directory creatable", func(t *testing.T) {
		v := NewConfigValidator(validInputs(t))
		result := v.CheckDatabasePath()
		if !result.Valid {
			t.Errorf("CheckDatabasePath() Valid = false, want true: %v", result.Error)
		}
	})

	t.Run("path not configured", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.DatabasePath = ""
		result := NewConfigValidator(inputs).CheckDatabasePath()
		if result.Valid {
			t.Error("CheckDatabasePath() Valid = true, want false")
		}
	})
}

func TestConfigValidator_CheckArtifactDir(t *testing.T) {
	t.Run("directory creatable", func(t *testing.T) {
		inputs := validInputs(t)
		result := NewConfigValidator(inputs).CheckArtifactDir()
		if !result.Valid {
			t.Errorf("CheckArtifactDir() Valid = false, want true: %v", result.Error)
		}
		if _, err := os.Stat(inputs.ArtifactDir); err != nil {
			t.Errorf("artifact dir was not created: %v", err)
		}
	})

	t.Run("dir not configured", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.ArtifactDir = ""
		result := NewConfigValidator(inputs).CheckArtifactDir()
		if result.Valid {
			t.Error("CheckArtifactDir() Valid = true, want false")
		}
	})
}

func TestConfigValidator_CheckListenAddr(t *testing.T) {
	tests := []struct {
		name      string
		addr      string
		wantValid bool
	}{
		{name: "host and port", addr: "127.0.0.1:8080", wantValid: true},
		{name: "all interfaces", addr: ":9090", wantValid: true},
		{name: "hostname", addr: "localhost:8080", wantValid: true},
		{name: "empty", addr: "", wantValid: false},
		{name: "missing port", addr: "127.0.0.1", wantValid: false},
		{name: "non numeric port", addr: "127.0.0.1:http", wantValid: false},
		{name: "port out of range", addr: "127.0.0.1:70000", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := validInputs(t)
			inputs.ListenAddr = tt.addr
			result := NewConfigValidator(inputs).CheckListenAddr()
			if result.Valid != tt.wantValid {
				t.Errorf("CheckListenAddr(%q) Valid = %v, want %v", tt.addr, result.Valid, tt.wantValid)
			}
		})
	}
}

func TestConfigValidator_ValidateAll(t *testing.T) {
	v := NewConfigValidator(validInputs(t))
	results := v.ValidateAll()

	if len(results) != 6 {
		t.Fatalf("ValidateAll() returned %d results, want 6", len(results))
	}
	for i, r := range results {
		if !r.Valid {
			t.Errorf("ValidateAll()[%d] Valid = false: %v", i, r.Error)
		}
	}
	if !v.IsValid() {
		t.Error("IsValid() = false, want true")
	}
	if got := v.CountValid(); got != 6 {
		t.Errorf("CountValid() = %d, want 6", got)
	}
	if got := v.CountInvalid(); got != 0 {
		t.Errorf("CountInvalid() = %d, want 0", got)
	}
}

func TestConfigValidator_ValidateRequired(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		v := NewConfigValidator(validInputs(t))
		if err := v.ValidateRequired(); err != nil {
			t.Errorf("ValidateRequired() = %v, want nil", err)
		}
	})

	t.Run("returns first failure", func(t *testing.T) {
		inputs := validInputs(t)
		inputs.ModelPath = filepath.Join(t.TempDir(), "missing.safetensors")
		v := NewConfigValidator(inputs)
		if err := v.ValidateRequired(); err == nil {
			t.Error("ValidateRequired() = nil, want error")
		}
		if v.IsValid() {
			t.Error("IsValid() = true, want false")
		}
	})
}
