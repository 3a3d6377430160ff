package collab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_Apply_Insert(t *testing.T) {
	op := Operation{Type: OpInsert, Position: 0, Text: "Grace"}
	out, err := op.Apply("")
	require.NoError(t, err)
	assert.Equal(t, "Grace", out)

	op = Operation{Type: OpInsert, Position: 5, Text: " and peace"}
	out, err = op.Apply("Grace")
	require.NoError(t, err)
	assert.Equal(t, "Grace and peace", out)
}

func TestOperation_Apply_InsertClampsPosition(t *testing.T) {
	// Out-of-range positions are clamped, not rejected.
	op := Operation{Type: OpInsert, Position: 100, Text: "!"}
	out, err := op.Apply("amen")
	require.NoError(t, err)
	assert.Equal(t, "amen!", out)
}

func TestOperation_Apply_InsertNotIdempotent(t *testing.T) {
	// Applying the same insert twice must produce different content.
	op := Operation{Type: OpInsert, Position: 0, Text: "Grace"}

	once, err := op.Apply("")
	require.NoError(t, err)
	twice, err := op.Apply(once)
	require.NoError(t, err)

	assert.NotEqual(t, once, twice)
	assert.Equal(t, "GraceGrace", twice)
}

func TestOperation_Apply_Delete(t *testing.T) {
	op := Operation{Type: OpDelete, Position: 5, Length: 10}
	out, err := op.Apply("Grace and peace")
	require.NoError(t, err)
	assert.Equal(t, "Grace", out)
}

func TestOperation_Apply_DeleteClampsRange(t *testing.T) {
	op := Operation{Type: OpDelete, Position: 2, Length: 100}
	out, err := op.Apply("amen")
	require.NoError(t, err)
	assert.Equal(t, "am", out)

	op = Operation{Type: OpDelete, Position: 100, Length: 1}
	out, err = op.Apply("amen")
	require.NoError(t, err)
	assert.Equal(t, "amen", out)
}

func TestOperation_Apply_Replace(t *testing.T) {
	op := Operation{Type: OpReplace, Text: "new text"}
	out, err := op.Apply("old text")
	require.NoError(t, err)
	assert.Equal(t, "new text", out)
}

func TestOperation_Apply_MultiByteContent(t *testing.T) {
	// Positions are rune offsets, not byte offsets.
	op := Operation{Type: OpInsert, Position: 1, Text: "×"}
	out, err := op.Apply("αβ")
	require.NoError(t, err)
	assert.Equal(t, "α×β", out)
}

func TestOperation_Validate(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		ok   bool
	}{
		{"valid insert", Operation{Type: OpInsert, Position: 0, Text: "x"}, true},
		{"negative insert position", Operation{Type: OpInsert, Position: -1}, false},
		{"valid delete", Operation{Type: OpDelete, Position: 0, Length: 1}, true},
		{"negative delete length", Operation{Type: OpDelete, Position: 0, Length: -1}, false},
		{"valid replace", Operation{Type: OpReplace, Text: ""}, true},
		{"unknown type", Operation{Type: "merge"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrValidation), "expected ErrValidation, got %v", err)
			}
		})
	}
}
