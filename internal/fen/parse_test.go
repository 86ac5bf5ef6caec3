package fen

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "starting position", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{name: "after e4", input: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"},
		{name: "without counters", input: "r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K2R w - -"},
		{name: "empty string", input: "", wantErr: true},
		{name: "too few fields", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w", wantErr: true},
		{name: "invalid side to move", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1", wantErr: true},
		{name: "wrong rank count", input: "rnbqkbnr/pppppppp/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", wantErr: true},
		{name: "wrong square count", input: "rnbqkbnr/ppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", wantErr: true},
		{name: "missing king", input: "rnbq1bnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQ - 0 1", wantErr: true},
		{name: "bad castling", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KKq - 0 1", wantErr: true},
		{name: "bad en passant", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq e4 0 1", wantErr: true},
		{name: "bad counter", input: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - x 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFEN) {
					t.Errorf("Validate() error = %v, want ErrInvalidFEN", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestWhiteToMove(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", true, false},
		{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", false, false},
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR", false, true},
	}

	for _, tt := range tests {
		got, err := WhiteToMove(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("WhiteToMove(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("WhiteToMove(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
