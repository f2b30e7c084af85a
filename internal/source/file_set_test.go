package source

import "testing"

func TestFileSetAddVirtualAndResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.toml", []byte("first line\nsecond line\n"))

	f := fs.Get(id)
	if f.Flags&FileVirtual == 0 {
		t.Fatalf("virtual flag not set")
	}

	// "second" начинается с offset 11
	start, _ := fs.Resolve(Span{File: id, Start: 11, End: 17})
	if start.Line != 2 || start.Col != 1 {
		t.Fatalf("expected 2:1, got %d:%d", start.Line, start.Col)
	}
	if got := f.GetLine(2); got != "second line" {
		t.Fatalf("GetLine(2) = %q", got)
	}
}

func TestFileSetNormalizesCRLF(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("crlf.toml", []byte("a\nb\n"))
	if fs.Get(id).Flags&FileNormalizedCRLF != 0 {
		t.Fatalf("no CRLF flag expected for LF content")
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 5, End: 10}
	b := Span{File: 1, Start: 2, End: 7}
	c := a.Cover(b)
	if c.Start != 2 || c.End != 10 {
		t.Fatalf("cover got %v", c)
	}
	other := Span{File: 2, Start: 0, End: 100}
	if got := a.Cover(other); got != a {
		t.Fatalf("cover across files must be a no-op")
	}
}
