package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnknownKind is returned for a DiffOp whose kind is not EQUAL, ADD or DELETE.
var ErrUnknownKind = errors.New("unknown diff op kind")

// Kind tags a DiffOp.
type Kind int

const (
	Equal  Kind = iota // run already present in the buffer; passed over
	Add                // run typed into the buffer one character at a time
	Delete             // run removed from the buffer one character at a time
)

func (k Kind) String() string {
	switch k {
	case Equal:
		return "EQUAL"
	case Add:
		return "ADD"
	case Delete:
		return "DELETE"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) valid() bool { return k == Equal || k == Add || k == Delete }

// ParseKind parses the wire tag of a kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "EQUAL":
		return Equal, nil
	case "ADD":
		return Add, nil
	case "DELETE":
		return Delete, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DiffOp is one contiguous run of a diff.
type DiffOp struct {
	Content string `json:"content"`
	Kind    Kind   `json:"type"`
}

// Sequence is an immutable, validated, ordered list of diff operations.
// The zero value is a valid empty sequence.
type Sequence struct {
	ops   []DiffOp
	runes [][]rune // ops[i].Content decoded, indexed by the machine
}

// NewSequence validates ops and returns a Sequence holding its own copy.
func NewSequence(ops []DiffOp) (Sequence, error) {
	for i, op := range ops {
		if !op.Kind.valid() {
			return Sequence{}, fmt.Errorf("op %d: %w: %d", i, ErrUnknownKind, int(op.Kind))
		}
	}
	cp := make([]DiffOp, len(ops))
	copy(cp, ops)
	runes := make([][]rune, len(ops))
	for i, op := range cp {
		runes[i] = []rune(op.Content)
	}
	return Sequence{ops: cp, runes: runes}, nil
}

// MustSequence is like NewSequence but panics on invalid input. Intended for literals.
func MustSequence(ops ...DiffOp) Sequence {
	seq, err := NewSequence(ops)
	if err != nil {
		panic(err)
	}
	return seq
}

func (s Sequence) Len() int { return len(s.ops) }

// At returns the op at index i. It panics if i is out of range, like a slice index.
func (s Sequence) At(i int) DiffOp { return s.ops[i] }

// Ops returns a copy of the operations.
func (s Sequence) Ops() []DiffOp {
	cp := make([]DiffOp, len(s.ops))
	copy(cp, s.ops)
	return cp
}

// Before returns the text the sequence expects to start from.
func (s Sequence) Before() string {
	var b strings.Builder
	for _, op := range s.ops {
		if op.Kind != Add {
			b.WriteString(op.Content)
		}
	}
	return b.String()
}

// After returns the text the sequence produces.
func (s Sequence) After() string {
	var b strings.Builder
	for _, op := range s.ops {
		if op.Kind != Delete {
			b.WriteString(op.Content)
		}
	}
	return b.String()
}

// BaseLen returns the expected input length in characters.
func (s Sequence) BaseLen() int {
	n := 0
	for _, op := range s.ops {
		if op.Kind != Add {
			n += utf8.RuneCountInString(op.Content)
		}
	}
	return n
}

// TargetLen returns the output length in characters.
func (s Sequence) TargetLen() int {
	n := 0
	for _, op := range s.ops {
		if op.Kind != Delete {
			n += utf8.RuneCountInString(op.Content)
		}
	}
	return n
}

// IsNoop reports whether replaying the sequence changes nothing.
func (s Sequence) IsNoop() bool {
	for _, op := range s.ops {
		if op.Kind != Equal && op.Content != "" {
			return false
		}
	}
	return true
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	if s.ops == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ops)
}

func (s *Sequence) UnmarshalJSON(data []byte) error {
	var ops []DiffOp
	if err := json.Unmarshal(data, &ops); err != nil {
		return err
	}
	seq, err := NewSequence(ops)
	if err != nil {
		return err
	}
	*s = seq
	return nil
}

// Apply applies seq to text in one go, without animation.
func Apply(text string, seq Sequence) (string, error) {
	src := []rune(text)
	if len(src) != seq.BaseLen() {
		return "", fmt.Errorf("text length %d != sequence base length %d", len(src), seq.BaseLen())
	}
	var b strings.Builder
	pos := 0
	for i, op := range seq.ops {
		n := utf8.RuneCountInString(op.Content)
		switch op.Kind {
		case Equal:
			if string(src[pos:pos+n]) != op.Content {
				return "", fmt.Errorf("op %d: equal run %q does not match text at %d", i, op.Content, pos)
			}
			b.WriteString(op.Content)
			pos += n
		case Add:
			b.WriteString(op.Content)
		case Delete:
			pos += n
		}
	}
	return b.String(), nil
}
