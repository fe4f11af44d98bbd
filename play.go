package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/alimasry/typing-replay/config"
	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/gitsource"
	"github.com/alimasry/typing-replay/replay"
)

// play animates the diff between two files, or two revisions of a file in a
// git repository, on stdout.
func play(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	beforePath := fs.String("before", "", "file holding the starting text (empty for none)")
	afterPath := fs.String("after", "", "file holding the final text")
	gitDir := fs.String("git", "", "repository to read -file's history from instead of -before/-after")
	file := fs.String("file", "", "file path inside the -git repository")
	ref := fs.String("ref", "", "revision whose history is read (default HEAD)")
	from := fs.Int("from", 0, "starting revision of -file, 0 is the empty text")
	to := fs.Int("to", -1, "final revision of -file, -1 for the latest")
	speed := fs.Float64("speed", cfg.Replay.Speed, "playback speed multiplier")
	lines := fs.Bool("lines", cfg.Replay.LineMode, "diff whole lines")
	fs.Parse(args)

	var before, after string
	var err error
	if *gitDir != "" {
		before, after, err = gitTexts(*gitDir, *ref, *file, *from, *to)
	} else {
		before, after, err = fileTexts(*beforePath, *afterPath)
	}
	if err != nil {
		return err
	}

	cfg.Replay.LineMode = *lines
	seq := diffFunc(cfg)(before, after)

	out := newTerminalSink(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	return animate(context.Background(), before, seq, out, driver.WithSpeed(*speed))
}

func fileTexts(beforePath, afterPath string) (string, string, error) {
	if afterPath == "" {
		return "", "", fmt.Errorf("play: -after is required")
	}
	before, err := readOptional(beforePath)
	if err != nil {
		return "", "", err
	}
	after, err := os.ReadFile(afterPath)
	if err != nil {
		return "", "", err
	}
	return before, string(after), nil
}

// gitTexts returns file's text at revisions from and to of its history.
func gitTexts(dir, ref, file string, from, to int) (string, string, error) {
	if file == "" {
		return "", "", fmt.Errorf("play: -git needs -file")
	}
	src, err := gitsource.Open(dir)
	if err != nil {
		return "", "", err
	}
	revs, err := src.FileHistory(ref, file)
	if err != nil {
		return "", "", err
	}
	if to < 0 {
		to = len(revs)
	}
	before, err := gitsource.TextAt(revs, from)
	if err != nil {
		return "", "", fmt.Errorf("play: -from: %w", err)
	}
	after, err := gitsource.TextAt(revs, to)
	if err != nil {
		return "", "", fmt.Errorf("play: -to: %w", err)
	}
	return before, after, nil
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

// animate plays seq over text through sink and returns once the run ends.
func animate(ctx context.Context, text string, seq replay.Sequence, sink *terminalSink, opts ...driver.Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	final := make(chan driver.Frame, 1)
	d := driver.New(driver.SinkFunc(func(f driver.Frame) {
		sink.Publish(f)
		if f.Done || f.Err != nil {
			final <- f
		}
	}), opts...)
	go d.Run(ctx)
	d.Start(text, seq)

	select {
	case f := <-final:
		sink.Finish(f)
		return f.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalSink redraws the whole buffer on every frame when attached to a
// terminal. Otherwise only the final text is written.
type terminalSink struct {
	w           io.Writer
	interactive bool
}

func newTerminalSink(w io.Writer, interactive bool) *terminalSink {
	return &terminalSink{w: w, interactive: interactive}
}

func (s *terminalSink) Publish(f driver.Frame) {
	if !s.interactive {
		return
	}
	fmt.Fprint(s.w, "\x1b[H\x1b[2J", f.Text)
}

func (s *terminalSink) Finish(f driver.Frame) {
	if s.interactive {
		fmt.Fprintln(s.w)
		return
	}
	fmt.Fprint(s.w, f.Text)
}
