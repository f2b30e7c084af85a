package diagfmt

import (
	"encoding/json"
	"io"

	"ouro/internal/diag"
	"ouro/internal/source"
)

type jsonNote struct {
	Msg  string `json:"msg"`
	Line uint32 `json:"line,omitempty"`
	Col  uint32 `json:"col,omitempty"`
}

type jsonDiagnostic struct {
	Severity string     `json:"severity"`
	Code     string     `json:"code"`
	Message  string     `json:"message"`
	Path     string     `json:"path"`
	Line     uint32     `json:"line,omitempty"`
	Col      uint32     `json:"col,omitempty"`
	Notes    []jsonNote `json:"notes,omitempty"`
}

type jsonPayload struct {
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
	Truncated   bool             `json:"truncated,omitempty"`
}

// JSON renders the bag as one indented JSON document.
func JSON(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts JSONOpts) error {
	payload := jsonPayload{
		Diagnostics: make([]jsonDiagnostic, 0, bag.Len()),
	}
	for i, d := range bag.Items() {
		if opts.Max > 0 && i >= opts.Max {
			payload.Truncated = true
			break
		}
		jd := jsonDiagnostic{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Message:  d.Message,
			Path:     fs.Get(d.Primary.File).Path,
		}
		if opts.IncludePositions {
			start, _ := fs.Resolve(d.Primary)
			jd.Line = start.Line
			jd.Col = start.Col
		}
		if opts.IncludeNotes {
			for _, n := range d.Notes {
				jn := jsonNote{Msg: n.Msg}
				if opts.IncludePositions {
					start, _ := fs.Resolve(n.Span)
					jn.Line = start.Line
					jn.Col = start.Col
				}
				jd.Notes = append(jd.Notes, jn)
			}
		}
		payload.Diagnostics = append(payload.Diagnostics, jd)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
