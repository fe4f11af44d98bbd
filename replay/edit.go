package replay

// EditKind tags an Edit.
type EditKind string

const (
	EditInsert EditKind = "insert"
	EditDelete EditKind = "delete"
)

// Position is a zero-based line/character location, characters counted in runes.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Edit is the single-character buffer change a transition performed, expressed
// both as a rune offset and as an editor position, so a host widget can apply
// it in place instead of replacing its whole text.
type Edit struct {
	Kind     EditKind `json:"kind"`
	Offset   int      `json:"offset"`
	Position Position `json:"position"`
	Text     string   `json:"text"`
}

// Apply applies e to buf and returns the resulting buffer. buf may be modified.
func (e Edit) Apply(buf []rune) []rune {
	switch e.Kind {
	case EditInsert:
		return insertAt(buf, e.Offset, []rune(e.Text)...)
	case EditDelete:
		return removeAt(buf, e.Offset, len([]rune(e.Text)))
	}
	return buf
}

// PositionAt converts a rune offset in buf into a line/character position.
func PositionAt(buf []rune, offset int) Position {
	var p Position
	for _, r := range buf[:offset] {
		if r == '\n' {
			p.Line++
			p.Character = 0
		} else {
			p.Character++
		}
	}
	return p
}

func insertAt(buf []rune, at int, rs ...rune) []rune {
	buf = append(buf, rs...)
	copy(buf[at+len(rs):], buf[at:])
	copy(buf[at:], rs)
	return buf
}

func removeAt(buf []rune, at, n int) []rune {
	return append(buf[:at], buf[at+n:]...)
}
