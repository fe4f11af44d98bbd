package replay

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// StepDelay is the recommended pause after every transition except the
// Init bootstrap, which has none.
const StepDelay = 20 * time.Millisecond

// ErrInvalidCursor is returned when a cursor does not fit the sequence or buffer
// it is stepped against. It means the caller broke the machine's preconditions.
var ErrInvalidCursor = errors.New("invalid cursor")

// Transition is the outcome of one Step.
type Transition struct {
	Cursor Cursor
	Buffer []rune
	Delay  time.Duration
	Edit   *Edit // nil when the buffer did not change
}

// Step advances the replay of seq by one transition. buf is the live buffer and
// may be modified in place; the returned Transition.Buffer is the buffer to use
// from now on. Stepping a Done cursor returns Done with buf unchanged.
func Step(seq Sequence, c Cursor, buf []rune) (Transition, error) {
	switch c := c.(type) {
	case nil, Init:
		if seq.Len() == 0 {
			return Transition{Cursor: Done{}, Buffer: buf}, nil
		}
		return Transition{Cursor: InProgress{}, Buffer: buf}, nil
	case Done:
		return Transition{Cursor: Done{}, Buffer: buf}, nil
	case InProgress:
		if err := check(seq, c.OpIndex, c.PosInOp, c.BufferPos, buf); err != nil {
			return Transition{}, fmt.Errorf("%v: %w", c, err)
		}
		return stepInProgress(seq, c, buf)
	case SeekNewLine:
		if err := check(seq, c.OpIndex, c.PosInOp, c.BufferPos, buf); err != nil {
			return Transition{}, fmt.Errorf("%v: %w", c, err)
		}
		return stepSeekNewLine(seq, c, buf), nil
	case ProcessChars:
		if err := check(seq, c.OpIndex, c.PosInOp, c.BufferPos, buf); err != nil {
			return Transition{}, fmt.Errorf("%v: %w", c, err)
		}
		return stepProcessChars(seq, c, buf), nil
	}
	return Transition{}, fmt.Errorf("%w: unsupported cursor %T", ErrInvalidCursor, c)
}

func check(seq Sequence, opIndex, posInOp, bufferPos int, buf []rune) error {
	if opIndex < 0 || opIndex >= seq.Len() {
		return fmt.Errorf("%w: op index %d out of range [0,%d)", ErrInvalidCursor, opIndex, seq.Len())
	}
	if n := len(seq.runes[opIndex]); posInOp < 0 || posInOp > n {
		return fmt.Errorf("%w: position %d outside op of length %d", ErrInvalidCursor, posInOp, n)
	}
	if bufferPos < 0 || bufferPos > len(buf) {
		return fmt.Errorf("%w: buffer position %d outside buffer of length %d", ErrInvalidCursor, bufferPos, len(buf))
	}
	if !seq.ops[opIndex].Kind.valid() {
		return fmt.Errorf("op %d: %w", opIndex, ErrUnknownKind)
	}
	return nil
}

// advance moves past the current op, keeping bufferPos.
func advance(seq Sequence, opIndex, bufferPos int, buf []rune) Transition {
	next := opIndex + 1
	if next >= seq.Len() {
		return Transition{Cursor: Done{}, Buffer: buf, Delay: StepDelay}
	}
	return Transition{Cursor: InProgress{OpIndex: next, BufferPos: bufferPos}, Buffer: buf, Delay: StepDelay}
}

func stepInProgress(seq Sequence, c InProgress, buf []rune) (Transition, error) {
	content := seq.runes[c.OpIndex]

	switch seq.ops[c.OpIndex].Kind {
	case Equal:
		// Nothing visible changes while passing over an unchanged run.
		end := c.BufferPos + len(content)
		if end > len(buf) {
			return Transition{}, fmt.Errorf("%v: %w: equal run of %d ends past buffer of length %d", c, ErrInvalidCursor, len(content), len(buf))
		}
		return advance(seq, c.OpIndex, end, buf), nil

	case Delete:
		if c.PosInOp == len(content) {
			return advance(seq, c.OpIndex, c.BufferPos, buf), nil
		}
		if c.BufferPos == len(buf) {
			return Transition{}, fmt.Errorf("%v: %w: nothing left to delete", c, ErrInvalidCursor)
		}
		edit := &Edit{
			Kind:     EditDelete,
			Offset:   c.BufferPos,
			Position: PositionAt(buf, c.BufferPos),
			Text:     string(buf[c.BufferPos]),
		}
		buf = removeAt(buf, c.BufferPos, 1)
		return Transition{
			Cursor: InProgress{OpIndex: c.OpIndex, PosInOp: c.PosInOp + 1, BufferPos: c.BufferPos},
			Buffer: buf,
			Delay:  StepDelay,
			Edit:   edit,
		}, nil

	default: // Add
		if c.PosInOp == len(content) {
			return advance(seq, c.OpIndex, c.BufferPos, buf), nil
		}
		return Transition{
			Cursor: SeekNewLine(c),
			Buffer: buf,
			Delay:  StepDelay,
		}, nil
	}
}

func stepSeekNewLine(seq Sequence, c SeekNewLine, buf []rune) Transition {
	content := seq.runes[c.OpIndex]
	if c.PosInOp == len(content) {
		return advance(seq, c.OpIndex, c.BufferPos, buf)
	}

	r := slices.Index(content[c.PosInOp:], '\n')
	if r < 0 {
		// Last line of the op: there is no break to place ahead of it.
		return Transition{
			Cursor: ProcessChars{OpIndex: c.OpIndex, PosInOp: c.PosInOp, BufferPos: c.BufferPos, NextBreakPos: -1},
			Buffer: buf,
			Delay:  StepDelay,
		}
	}

	edit := &Edit{Kind: EditInsert, Offset: c.BufferPos, Position: PositionAt(buf, c.BufferPos), Text: "\n"}
	buf = insertAt(buf, c.BufferPos, '\n')
	breakPos := c.PosInOp + r
	if breakPos == c.PosInOp {
		// Empty line: the break is all there is, step over it.
		return Transition{
			Cursor: SeekNewLine{OpIndex: c.OpIndex, PosInOp: c.PosInOp + 1, BufferPos: c.BufferPos + 1},
			Buffer: buf,
			Delay:  StepDelay,
			Edit:   edit,
		}
	}
	return Transition{
		Cursor: ProcessChars{OpIndex: c.OpIndex, PosInOp: c.PosInOp, BufferPos: c.BufferPos, NextBreakPos: breakPos},
		Buffer: buf,
		Delay:  StepDelay,
		Edit:   edit,
	}
}

func stepProcessChars(seq Sequence, c ProcessChars, buf []rune) Transition {
	content := seq.runes[c.OpIndex]
	if c.PosInOp == len(content) {
		return advance(seq, c.OpIndex, c.BufferPos, buf)
	}

	ch := content[c.PosInOp]
	edit := &Edit{Kind: EditInsert, Offset: c.BufferPos, Position: PositionAt(buf, c.BufferPos), Text: string(ch)}
	buf = insertAt(buf, c.BufferPos, ch)
	pos, bufPos := c.PosInOp+1, c.BufferPos+1

	var next Cursor
	if pos == c.NextBreakPos {
		// The break closing this line went in during SeekNewLine; skip it.
		next = SeekNewLine{OpIndex: c.OpIndex, PosInOp: pos + 1, BufferPos: bufPos + 1}
	} else {
		next = ProcessChars{OpIndex: c.OpIndex, PosInOp: pos, BufferPos: bufPos, NextBreakPos: c.NextBreakPos}
	}
	return Transition{Cursor: next, Buffer: buf, Delay: StepDelay, Edit: edit}
}
