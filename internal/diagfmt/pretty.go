package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"ouro/internal/diag"
	"ouro/internal/source"
)

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем контекст строки с подчёркиванием ^~~~ по Span, затем Notes.
// Цвет включается опцией.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	errColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow, color.Bold)
	infoColor := color.New(color.FgCyan)
	if !opts.Color {
		errColor.DisableColor()
		warnColor.DisableColor()
		infoColor.DisableColor()
	}

	for _, d := range bag.Items() {
		writeHeader(w, d, fs, sevPainter(d.Severity, errColor, warnColor, infoColor))
		writeContext(w, d.Primary, fs)
		if opts.ShowNotes {
			for _, n := range d.Notes {
				start, _ := fs.Resolve(n.Span)
				f := fs.Get(n.Span.File)
				fmt.Fprintf(w, "  note: %s:%d:%d: %s\n", f.Path, start.Line, start.Col, n.Msg)
			}
		}
	}
}

func sevPainter(s diag.Severity, errC, warnC, infoC *color.Color) *color.Color {
	switch s {
	case diag.SevError:
		return errC
	case diag.SevWarning:
		return warnC
	}
	return infoC
}

func writeHeader(w io.Writer, d diag.Diagnostic, fs *source.FileSet, painter *color.Color) {
	start, _ := fs.Resolve(d.Primary)
	f := fs.Get(d.Primary.File)
	fmt.Fprintf(w, "%s:%d:%d: %s %s: %s\n",
		f.Path, start.Line, start.Col,
		painter.Sprint(d.Severity.String()), d.Code.ID(), d.Message)
}

func writeContext(w io.Writer, span source.Span, fs *source.FileSet) {
	if span.Empty() {
		return
	}
	start, end := fs.Resolve(span)
	f := fs.Get(span.File)
	line := f.GetLine(start.Line)
	if line == "" {
		return
	}
	fmt.Fprintf(w, "  %s\n", line)

	underlineLen := 1
	if end.Line == start.Line && end.Col > start.Col {
		underlineLen = int(end.Col - start.Col)
	}
	pad := strings.Repeat(" ", int(start.Col-1))
	marker := "^"
	if underlineLen > 1 {
		marker += strings.Repeat("~", underlineLen-1)
	}
	fmt.Fprintf(w, "  %s%s\n", pad, marker)
}
