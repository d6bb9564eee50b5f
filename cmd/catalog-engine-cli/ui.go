package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI provides user-friendly output utilities. In JSON mode it is silent so
// that stdout carries only the JSON document.
type UI struct {
	out      io.Writer
	jsonMode bool
}

// NewUI writes to stdout. Colour is off with --no-color or when stdout is
// not a terminal.
func NewUI(jsonMode, noColor bool) *UI {
	if noColor || !IsTerminal(os.Stdout) {
		color.NoColor = true
	}
	return &UI{out: os.Stdout, jsonMode: jsonMode}
}

type tone struct {
	symbol string
	color  *color.Color
}

var (
	toneSuccess = tone{"✓", color.New(color.FgGreen)}
	toneError   = tone{"✗", color.New(color.FgRed)}
	toneWarning = tone{"!", color.New(color.FgYellow)}
	toneInfo    = tone{"i", color.New(color.FgCyan)}
	toneStep    = tone{"→", color.New(color.FgBlue)}
)

func (ui *UI) say(t tone, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	t.color.Fprintf(ui.out, "%s %s\n", t.symbol, fmt.Sprintf(format, args...))
}

func (ui *UI) Success(format string, args ...interface{}) { ui.say(toneSuccess, format, args...) }
func (ui *UI) Error(format string, args ...interface{})   { ui.say(toneError, format, args...) }
func (ui *UI) Warning(format string, args ...interface{}) { ui.say(toneWarning, format, args...) }
func (ui *UI) Info(format string, args ...interface{})    { ui.say(toneInfo, format, args...) }
func (ui *UI) Step(format string, args ...interface{})    { ui.say(toneStep, format, args...) }

// Section prints an underlined heading preceded by a blank line.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	heading := color.New(color.FgMagenta, color.Bold)
	heading.Fprintf(ui.out, "\n%s\n", title)
	heading.Fprintln(ui.out, strings.Repeat("─", utf8.RuneCountInString(title)))
}

// KeyValue prints an indented "key: value" line.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintf(ui.out, "  %s %v\n", color.YellowString(key+":"), value)
}

func (ui *UI) Newline() {
	if !ui.jsonMode {
		fmt.Fprintln(ui.out)
	}
}

// Text prints preformatted text such as a rendered answer.
func (ui *UI) Text(s string) {
	if !ui.jsonMode {
		fmt.Fprintln(ui.out, strings.TrimRight(s, "\n"))
	}
}

// Table draws a box table sized to the widest cell of each column.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	measure := func(cells []string) {
		for i := 0; i < len(cells) && i < len(widths); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(cells[i]))
		}
	}
	measure(headers)
	for _, r := range rows {
		measure(r)
	}

	border := color.New(color.FgCyan, color.Bold)
	rule := func(left, mid, right string) {
		border.Fprint(ui.out, left)
		for i, w := range widths {
			border.Fprint(ui.out, strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				border.Fprint(ui.out, mid)
			}
		}
		border.Fprintln(ui.out, right)
	}
	line := func(cells []string) {
		border.Fprint(ui.out, "│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(ui.out, " %s%s ", cell, strings.Repeat(" ", w-utf8.RuneCountInString(cell)))
			border.Fprint(ui.out, "│")
		}
		fmt.Fprintln(ui.out)
	}

	rule("┌", "┬", "┐")
	line(headers)
	rule("├", "┼", "┤")
	for _, row := range rows {
		line(row)
	}
	rule("└", "┴", "┘")
}

// Spinner is an indeterminate progress indicator on stderr.
type Spinner struct {
	s *spinner.Spinner
}

// Spinner starts a spinner with the given message. Nothing is drawn in JSON
// mode or when stderr is not a terminal.
func (ui *UI) Spinner(message string) *Spinner {
	if ui.jsonMode || !IsTerminal(os.Stderr) {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()
	return &Spinner{s: s}
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	if s.s != nil {
		s.s.Stop()
	}
}

// ProgressBar shows deterministic progress on stderr.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// ProgressBar draws a counted bar on stderr. Nothing is drawn in JSON mode.
func (ui *UI) ProgressBar(total int, description string) *ProgressBar {
	if ui.jsonMode {
		return &ProgressBar{}
	}
	return &ProgressBar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)}
}

// Set moves the bar to current of total.
func (p *ProgressBar) Set(current, total int) {
	if p.bar == nil {
		return
	}
	p.bar.ChangeMax(total)
	_ = p.bar.Set(current)
}

// Describe changes the text in front of the bar.
func (p *ProgressBar) Describe(description string) {
	if p.bar != nil {
		p.bar.Describe(description)
	}
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// WorkerBars shows one open-ended counter per worker.
type WorkerBars struct {
	progress *mpb.Progress
	bars     []*mpb.Bar
	counts   []int64
}

// WorkerBars creates n worker counters. It is a no-op in JSON mode.
func (ui *UI) WorkerBars(n int) *WorkerBars {
	if ui.jsonMode || n <= 0 {
		return &WorkerBars{}
	}
	wb := &WorkerBars{
		progress: mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr)),
		bars:     make([]*mpb.Bar, n),
		counts:   make([]int64, n),
	}
	for i := range wb.bars {
		name := fmt.Sprintf("worker %d", i+1)
		wb.bars[i] = wb.progress.AddBar(0,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}),
				decor.OnComplete(decor.Name(""), " done"),
			),
		)
	}
	return wb
}

// Add records that worker processed n more items out of total.
func (wb *WorkerBars) Add(worker, n, total int) {
	if wb.progress == nil || worker < 0 || worker >= len(wb.bars) {
		return
	}
	wb.counts[worker] += int64(total)
	wb.bars[worker].SetTotal(wb.counts[worker], false)
	wb.bars[worker].IncrBy(n)
}

// Wait completes every bar and waits for the last render.
func (wb *WorkerBars) Wait() {
	if wb.progress == nil {
		return
	}
	for _, bar := range wb.bars {
		bar.SetTotal(-1, true)
	}
	wb.progress.Wait()
}

// Prompt reads one line from in.
func Prompt(in *bufio.Reader, label string) (string, error) {
	color.New(color.FgGreen, color.Bold).Fprint(os.Stdout, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// FormatDuration rounds d for display: whole milliseconds below a second,
// tenths of a second above.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
