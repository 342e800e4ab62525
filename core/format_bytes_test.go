package core

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "zero", bytes: 0, want: "0 B"},
		{name: "bytes", bytes: 512, want: "512 B"},
		{name: "exactly one KB", bytes: 1024, want: "1.00 KB"},
		{name: "fractional KB", bytes: 1536, want: "1.50 KB"},
		{name: "one MB", bytes: 1048576, want: "1.00 MB"},
		{name: "one GB", bytes: 1073741824, want: "1.00 GB"},
		{name: "one TB", bytes: 1099511627776, want: "1.00 TB"},
		{name: "negative treated as zero", bytes: -100, want: "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
