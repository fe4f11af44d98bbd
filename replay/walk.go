package replay

import "unicode/utf8"

// Walk replays seq over text synchronously, calling visit with the buffer text
// after every transition. It returns the final text. visit may be nil.
func Walk(text string, seq Sequence, visit func(text string, tr Transition)) (string, error) {
	var c Cursor = Init{}
	buf := []rune(text)
	for !IsDone(c) {
		tr, err := Step(seq, c, buf)
		if err != nil {
			return string(buf), err
		}
		c, buf = tr.Cursor, tr.Buffer
		if visit != nil {
			visit(string(buf), tr)
		}
	}
	return string(buf), nil
}

// StepCount returns the number of transitions Walk performs for seq, including
// the Init bootstrap.
func StepCount(seq Sequence) int {
	n := 1
	for i, op := range seq.ops {
		size := utf8.RuneCountInString(op.Content)
		switch {
		case op.Kind == Equal, size == 0:
			n++
		case op.Kind == Delete:
			n += size + 1 // one per character, one to finish
		default:
			// Entering the op, one per character (breaks included), then
			// finishing: a trailing break leaves only the final seek, a
			// trailing line costs a no-break seek plus the finishing step.
			n += 1 + size
			if seq.runes[i][size-1] == '\n' {
				n++
			} else {
				n += 2
			}
		}
	}
	return n
}
