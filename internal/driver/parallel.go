package driver

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"ouro/internal/diag"
	"ouro/internal/engine"
	"ouro/internal/manifest"
	"ouro/internal/schema"
	"ouro/internal/source"
)

// CheckOptions configures a manifest check run.
type CheckOptions struct {
	MaxDiagnostics   int
	Jobs             int // max parallel workers, 0 = auto
	ExclusiveBorrows bool
}

// CheckResult содержит результат валидации одной структуры.
type CheckResult struct {
	Struct string
	Schema *schema.StructSchema // nil когда валидация провалилась
	Bag    *diag.Bag
}

// CheckOutput aggregates setup-phase and per-struct diagnostics.
type CheckOutput struct {
	Engine   *engine.Engine
	SetupBag *diag.Bag
	Results  []CheckResult // in manifest order
}

// HasErrors reports whether any phase produced an error diagnostic.
func (o *CheckOutput) HasErrors() bool {
	if o.SetupBag.HasErrors() {
		return true
	}
	for _, r := range o.Results {
		if r.Bag.HasErrors() {
			return true
		}
	}
	return false
}

// MergedBag collects all diagnostics into one sorted bag.
func (o *CheckOutput) MergedBag() *diag.Bag {
	out := diag.NewBag(int(o.SetupBag.Cap()))
	out.Merge(o.SetupBag)
	for _, r := range o.Results {
		out.Merge(r.Bag)
	}
	out.Sort()
	return out
}

// CheckManifest runs the full pipeline over one manifest: capability setup,
// registry freeze, then concurrent per-struct validation.
//
// Registration completes strictly before validation starts; after the
// freeze the registry and interner are only read, so the per-struct
// goroutines need no extra locking.
func CheckManifest(ctx context.Context, m *manifest.Manifest, fs *source.FileSet, opts CheckOptions) (*CheckOutput, error) {
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = 100
	}
	eng := engine.New(engine.Options{ExclusiveBorrows: opts.ExclusiveBorrows})

	setupBag := diag.NewBag(opts.MaxDiagnostics)
	setupRep := diag.BagReporter{Bag: setupBag}
	m.Setup(eng, fs, setupRep)
	decls := m.StructDecls(eng, fs, setupRep)
	eng.Freeze()

	out := &CheckOutput{
		Engine:   eng,
		SetupBag: setupBag,
		Results:  make([]CheckResult, len(decls)),
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, decl := range decls {
		g.Go(func() error {
			bag := diag.NewBag(opts.MaxDiagnostics)
			s, _ := schema.Validate(eng.Registry(), decl.NameID, decl.Fields, diag.BagReporter{Bag: bag})
			out.Results[i] = CheckResult{
				Struct: decl.Name,
				Schema: s,
				Bag:    bag,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
