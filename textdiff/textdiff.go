// Package textdiff produces replay sequences from two versions of a text.
package textdiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/alimasry/typing-replay/replay"
)

type options struct {
	lineMode bool
	semantic bool
}

// Option tunes Compute.
type Option func(*options)

// WithLineMode diffs whole lines instead of characters. Changed lines are
// deleted and retyped in full, which reads better for source code.
func WithLineMode() Option {
	return func(o *options) { o.lineMode = true }
}

// WithoutSemanticCleanup keeps the raw, minimal character diff.
func WithoutSemanticCleanup() Option {
	return func(o *options) { o.semantic = false }
}

// Compute diffs before against after. The result always satisfies
// seq.Before() == before and seq.After() == after.
func Compute(before, after string, opts ...Option) replay.Sequence {
	o := options{semantic: true}
	for _, opt := range opts {
		opt(&o)
	}

	dmp := diffmatchpatch.New()
	var diffs []diffmatchpatch.Diff
	if o.lineMode {
		rBefore, rAfter, lines := dmp.DiffLinesToRunes(before, after)
		if len(lines) < maxLines {
			diffs = decodeLines(dmp.DiffMainRunes(rBefore, rAfter, false), lines)
		}
	} else {
		diffs = dmp.DiffMain(before, after, true)
		if o.semantic {
			diffs = dmp.DiffCleanupSemantic(diffs)
		}
	}

	seq := toSequence(diffs)
	if diffs == nil || seq.Before() != before || seq.After() != after {
		// Line indexes past the surrogate range do not survive the rune
		// encoding go-diff uses for lines, so diff characters directly.
		diffs = dmp.DiffMain(before, after, false)
		if o.semantic {
			diffs = dmp.DiffCleanupSemantic(diffs)
		}
		seq = toSequence(diffs)
	}
	return seq
}

// maxLines is the first line index go-diff would encode as a surrogate.
const maxLines = 0xD800

func toSequence(diffs []diffmatchpatch.Diff) replay.Sequence {
	ops := make([]replay.DiffOp, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		ops = append(ops, replay.DiffOp{Content: d.Text, Kind: kindOf(d.Type)})
	}
	return replay.MustSequence(ops...)
}

func kindOf(t diffmatchpatch.Operation) replay.Kind {
	switch t {
	case diffmatchpatch.DiffInsert:
		return replay.Add
	case diffmatchpatch.DiffDelete:
		return replay.Delete
	}
	return replay.Equal
}

// decodeLines maps line-index runes back to the lines they stand for.
func decodeLines(diffs []diffmatchpatch.Diff, lines []string) []diffmatchpatch.Diff {
	out := make([]diffmatchpatch.Diff, 0, len(diffs))
	for _, d := range diffs {
		var b strings.Builder
		for _, r := range d.Text {
			if idx := int(r); idx >= 0 && idx < len(lines) {
				b.WriteString(lines[idx])
			}
		}
		out = append(out, diffmatchpatch.Diff{Type: d.Type, Text: b.String()})
	}
	return out
}
