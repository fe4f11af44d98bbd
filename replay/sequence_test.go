package replay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequence_RejectsUnknownKind(t *testing.T) {
	_, err := NewSequence([]DiffOp{{Content: "a", Kind: Equal}, {Content: "b", Kind: Kind(7)}})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "op 1")
}

func TestNewSequence_CopiesInput(t *testing.T) {
	ops := []DiffOp{{Content: "a", Kind: Add}}
	seq, err := NewSequence(ops)
	require.NoError(t, err)

	ops[0].Content = "changed"
	assert.Equal(t, "a", seq.At(0).Content)

	out := seq.Ops()
	out[0].Kind = Delete
	assert.Equal(t, Add, seq.At(0).Kind)
}

func TestSequence_Empty(t *testing.T) {
	var zero Sequence
	assert.Equal(t, 0, zero.Len())
	assert.True(t, zero.IsNoop())

	seq, err := NewSequence(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, seq.Len())
}

func TestSequence_Sides(t *testing.T) {
	seq := MustSequence(
		DiffOp{"ab", Equal},
		DiffOp{"X", Delete},
		DiffOp{"héllo\n", Add},
		DiffOp{"cd", Equal},
	)
	assert.Equal(t, "abXcd", seq.Before())
	assert.Equal(t, "abhéllo\ncd", seq.After())
	assert.Equal(t, 5, seq.BaseLen())
	assert.Equal(t, 10, seq.TargetLen())
}

func TestSequence_IsNoop(t *testing.T) {
	tests := []struct {
		name string
		seq  Sequence
		want bool
	}{
		{"empty", Sequence{}, true},
		{"equal only", MustSequence(DiffOp{"abc", Equal}), true},
		{"empty add", MustSequence(DiffOp{"abc", Equal}, DiffOp{"", Add}), true},
		{"has add", MustSequence(DiffOp{"x", Add}), false},
		{"has delete", MustSequence(DiffOp{"x", Delete}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seq.IsNoop())
		})
	}
}

func TestSequence_JSON(t *testing.T) {
	seq := MustSequence(DiffOp{"ab", Equal}, DiffOp{"C", Add}, DiffOp{"d", Delete})
	data, err := json.Marshal(seq)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"content":"ab","type":"EQUAL"},{"content":"C","type":"ADD"},{"content":"d","type":"DELETE"}]`, string(data))

	var back Sequence
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, seq.Ops(), back.Ops())
	assert.Equal(t, "abC", back.After())

	empty, err := json.Marshal(Sequence{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestSequence_JSONUnknownTag(t *testing.T) {
	var seq Sequence
	err := json.Unmarshal([]byte(`[{"content":"a","type":"REPLACE"}]`), &seq)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		seq     Sequence
		want    string
		wantErr bool
	}{
		{"insert in middle", "abef", MustSequence(DiffOp{"ab", Equal}, DiffOp{"CD", Add}, DiffOp{"ef", Equal}), "abCDef", false},
		{"delete in middle", "abc", MustSequence(DiffOp{"a", Equal}, DiffOp{"b", Delete}, DiffOp{"c", Equal}), "ac", false},
		{"replace", "hello", MustSequence(DiffOp{"hello", Delete}, DiffOp{"bye", Add}), "bye", false},
		{"empty text insert", "", MustSequence(DiffOp{"hi", Add}), "hi", false},
		{"unicode", "naïve", MustSequence(DiffOp{"na", Equal}, DiffOp{"ï", Delete}, DiffOp{"i", Add}, DiffOp{"ve", Equal}), "naive", false},
		{"empty sequence", "", Sequence{}, "", false},
		{"length mismatch", "hi", MustSequence(DiffOp{"hello", Equal}), "", true},
		{"equal mismatch", "abc", MustSequence(DiffOp{"xyz", Equal}), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.text, tt.seq)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Equal, Add, Delete} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("equal")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
