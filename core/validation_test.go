package core

import (
	"errors"
	"testing"
)

func TestValidateDimensions(t *testing.T) {
	tests := []struct {
		name    string
		dim     int
		vectors [][]float32
		wantErr error
	}{
		{name: "matching", dim: 3, vectors: [][]float32{{1, 2, 3}, {4, 5, 6}}},
		{name: "no vectors", dim: 3},
		{name: "short vector", dim: 3, vectors: [][]float32{{1, 2, 3}, {1, 2}}, wantErr: ErrDimensionMismatch},
		{name: "empty vector", dim: 3, vectors: [][]float32{{}}, wantErr: ErrDimensionMismatch},
		{name: "unconfigured", dim: 0, vectors: [][]float32{{1}}, wantErr: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDimensions(tt.dim, tt.vectors...)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDimensions() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDimensions() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSelector(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selector
		wantErr bool
	}{
		{name: "file ids", sel: Selector{FileIDs: []string{"f"}}},
		{name: "custom ids", sel: Selector{CustomIDs: []string{"c"}}},
		{name: "neither", sel: Selector{}, wantErr: true},
		{name: "both", sel: Selector{FileIDs: []string{"f"}, CustomIDs: []string{"c"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelector(tt.sel)
			if tt.wantErr != (err != nil) {
				t.Errorf("ValidateSelector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSelector) {
				t.Errorf("ValidateSelector() error = %v, want ErrInvalidSelector", err)
			}
		})
	}
}

func TestNormalizePageStatus(t *testing.T) {
	tests := []struct {
		in      Status
		want    Status
		wantErr bool
	}{
		{in: "", want: StatusEnabled},
		{in: StatusEnabled, want: StatusEnabled},
		{in: StatusDisabled, want: StatusDisabled},
		{in: StatusAll, want: StatusAll},
		{in: "archived", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := NormalizePageStatus(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStatus) {
					t.Errorf("NormalizePageStatus(%q) error = %v, want ErrInvalidStatus", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizePageStatus(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestValidateStatus(t *testing.T) {
	if err := ValidateStatus(StatusEnabled); err != nil {
		t.Errorf("ValidateStatus(enabled) error = %v", err)
	}
	if err := ValidateStatus(StatusAll); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ValidateStatus(all) error = %v, want ErrInvalidStatus", err)
	}
}

func TestValidateChunkingConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkingConfig
		wantErr bool
	}{
		{name: "zero value", cfg: ChunkingConfig{}},
		{name: "length", cfg: ChunkingConfig{Strategy: ChunkByLength, ChunkSize: 500, ChunkOverlap: 50}},
		{name: "auto size", cfg: ChunkingConfig{ChunkSize: AutoChunkSize, ChunkOverlap: 4}},
		{name: "auto size without overlap", cfg: ChunkingConfig{ChunkSize: AutoChunkSize}, wantErr: true},
		{name: "overlap too large", cfg: ChunkingConfig{ChunkSize: 10, ChunkOverlap: 10}, wantErr: true},
		{name: "delimiter without list", cfg: ChunkingConfig{Strategy: ChunkByDelimiter}, wantErr: true},
		{name: "delimiter merged", cfg: ChunkingConfig{Strategy: ChunkByDelimiter, MergeDelimiters: true}},
		{name: "unknown strategy", cfg: ChunkingConfig{Strategy: "semantic"}, wantErr: true},
		{name: "negative window", cfg: ChunkingConfig{WindowSize: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunkingConfig(tt.cfg)
			if tt.wantErr != (err != nil) {
				t.Errorf("ValidateChunkingConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
