package replay

import "fmt"

// Cursor is the replay progress through a Sequence and the live buffer.
// The variants are Init, InProgress, SeekNewLine, ProcessChars and Done;
// no other package can add one.
type Cursor interface {
	fmt.Stringer
	cursor()
}

// Init is the cursor before the animation starts.
type Init struct{}

// InProgress points at the start of an op, or inside a DELETE op.
type InProgress struct {
	OpIndex   int
	PosInOp   int // characters of the op already processed
	BufferPos int // buffer offset where the next character is read, inserted or removed
}

// SeekNewLine is entered while typing an ADD op: the next line break, if any,
// is placed before the characters of its line are filled in.
type SeekNewLine struct {
	OpIndex   int
	PosInOp   int
	BufferPos int
}

// ProcessChars types the characters of the current line of an ADD op.
type ProcessChars struct {
	OpIndex      int
	PosInOp      int
	BufferPos    int
	NextBreakPos int // index in the op content of the line's break, -1 if none
}

// Done is terminal.
type Done struct{}

func (Init) cursor()         {}
func (InProgress) cursor()   {}
func (SeekNewLine) cursor()  {}
func (ProcessChars) cursor() {}
func (Done) cursor()         {}

func (Init) String() string { return "Init" }
func (Done) String() string { return "Done" }

func (c InProgress) String() string {
	return fmt.Sprintf("InProgress{op:%d pos:%d buf:%d}", c.OpIndex, c.PosInOp, c.BufferPos)
}

func (c SeekNewLine) String() string {
	return fmt.Sprintf("SeekNewLine{op:%d pos:%d buf:%d}", c.OpIndex, c.PosInOp, c.BufferPos)
}

func (c ProcessChars) String() string {
	return fmt.Sprintf("ProcessChars{op:%d pos:%d buf:%d break:%d}", c.OpIndex, c.PosInOp, c.BufferPos, c.NextBreakPos)
}

// CursorSnapshot is a flat, JSON friendly view of a Cursor for diagnostics.
type CursorSnapshot struct {
	Kind         string `json:"kind"`
	OpIndex      int    `json:"opIndex"`
	PosInOp      int    `json:"posInOp"`
	BufferPos    int    `json:"bufferPos"`
	NextBreakPos int    `json:"nextBreakPos"`
}

// Snapshot flattens c. Positions are zero for Init and Done.
func Snapshot(c Cursor) CursorSnapshot {
	switch c := c.(type) {
	case InProgress:
		return CursorSnapshot{Kind: "InProgress", OpIndex: c.OpIndex, PosInOp: c.PosInOp, BufferPos: c.BufferPos, NextBreakPos: -1}
	case SeekNewLine:
		return CursorSnapshot{Kind: "SeekNewLine", OpIndex: c.OpIndex, PosInOp: c.PosInOp, BufferPos: c.BufferPos, NextBreakPos: -1}
	case ProcessChars:
		return CursorSnapshot{Kind: "ProcessChars", OpIndex: c.OpIndex, PosInOp: c.PosInOp, BufferPos: c.BufferPos, NextBreakPos: c.NextBreakPos}
	case Done:
		return CursorSnapshot{Kind: "Done", NextBreakPos: -1}
	}
	return CursorSnapshot{Kind: "Init", NextBreakPos: -1}
}

// IsDone reports whether c is terminal.
func IsDone(c Cursor) bool {
	_, ok := c.(Done)
	return ok
}
