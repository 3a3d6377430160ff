package collab

import "fmt"

// Operation types.
const (
	OpInsert  = "insert"
	OpDelete  = "delete"
	OpReplace = "replace"
)

// Operation is an immutable record of one edit against a block. Position and
// Length are rune offsets so multi-byte content splices correctly.
type Operation struct {
	Type     string `json:"type"`
	Position int    `json:"position,omitempty"`
	Length   int    `json:"length,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Validate rejects unknown operation types and negative offsets.
func (op Operation) Validate() error {
	switch op.Type {
	case OpInsert:
		if op.Position < 0 {
			return fmt.Errorf("%w: insert position %d", ErrValidation, op.Position)
		}
	case OpDelete:
		if op.Position < 0 || op.Length < 0 {
			return fmt.Errorf("%w: delete position %d length %d", ErrValidation, op.Position, op.Length)
		}
	case OpReplace:
		// Whole-content substitution; nothing to range-check.
	default:
		return fmt.Errorf("%w: unknown operation type %q", ErrValidation, op.Type)
	}
	return nil
}

// Apply computes the new block content. Out-of-range positions are clamped
// to the content bounds, not rejected.
func (op Operation) Apply(content string) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	switch op.Type {
	case OpInsert:
		runes := []rune(content)
		pos := clamp(op.Position, 0, len(runes))
		return string(runes[:pos]) + op.Text + string(runes[pos:]), nil

	case OpDelete:
		runes := []rune(content)
		start := clamp(op.Position, 0, len(runes))
		end := clamp(op.Position+op.Length, start, len(runes))
		return string(runes[:start]) + string(runes[end:]), nil

	default: // OpReplace
		return op.Text, nil
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
