// Package fen provides FEN (Forsyth-Edwards Notation) validation utilities.
//
// The checks here are structural only. Move legality is delegated to the
// replay package and to the engine itself.
package fen

import (
	"errors"
	"strings"
)

// ErrInvalidFEN indicates the FEN string is malformed.
var ErrInvalidFEN = errors.New("invalid FEN notation")

// Validate reports whether fen is structurally valid: piece placement,
// side to move, castling rights and en passant square. The halfmove clock
// and fullmove number are optional.
func Validate(fen string) error {
	parts := strings.Fields(fen)
	if len(parts) < 4 || len(parts) > 6 {
		return ErrInvalidFEN
	}
	if !isValidPiecePlacement(parts[0]) {
		return ErrInvalidFEN
	}
	if parts[1] != "w" && parts[1] != "b" {
		return ErrInvalidFEN
	}
	if !isValidCastling(parts[2]) {
		return ErrInvalidFEN
	}
	if !isValidEnPassant(parts[3]) {
		return ErrInvalidFEN
	}
	for _, counter := range parts[4:] {
		if !isDigits(counter) {
			return ErrInvalidFEN
		}
	}
	return nil
}

// Normalize returns a normalized FEN string with the position, side to move,
// castling rights and en passant square, ignoring the move counters.
func Normalize(fen string) (string, error) {
	if err := Validate(fen); err != nil {
		return "", err
	}
	parts := strings.Fields(fen)
	return strings.Join(parts[:4], " "), nil
}

// SideToMove returns "w" or "b" from a FEN string.
func SideToMove(fen string) (string, error) {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return "", ErrInvalidFEN
	}
	if parts[1] != "w" && parts[1] != "b" {
		return "", ErrInvalidFEN
	}
	return parts[1], nil
}

// WhiteToMove reports whether White is to move in fen.
func WhiteToMove(fen string) (bool, error) {
	side, err := SideToMove(fen)
	if err != nil {
		return false, err
	}
	return side == "w", nil
}

// isValidPiecePlacement validates the piece placement part of a FEN.
func isValidPiecePlacement(placement string) bool {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return false
	}

	var whiteKings, blackKings int
	for _, rank := range ranks {
		squares := 0
		for _, ch := range rank {
			switch {
			case ch >= '1' && ch <= '8':
				squares += int(ch - '0')
			case ch == 'K':
				whiteKings++
				squares++
			case ch == 'k':
				blackKings++
				squares++
			case strings.ContainsRune("PNBRQpnbrq", ch):
				squares++
			default:
				return false
			}
		}
		if squares != 8 {
			return false
		}
	}

	return whiteKings == 1 && blackKings == 1
}

func isValidCastling(s string) bool {
	if s == "-" {
		return true
	}
	if len(s) > 4 {
		return false
	}
	seen := make(map[rune]bool, 4)
	for _, ch := range s {
		if !strings.ContainsRune("KQkq", ch) || seen[ch] {
			return false
		}
		seen[ch] = true
	}
	return true
}

func isValidEnPassant(s string) bool {
	if s == "-" {
		return true
	}
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && (s[1] == '3' || s[1] == '6')
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
