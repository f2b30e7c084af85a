package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ouro/internal/diagfmt"
	"ouro/internal/driver"
	"ouro/internal/manifest"
	"ouro/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [ouro.toml]",
	Short: "Validate struct declarations from a manifest",
	Long:  `Validate the lifetime bindings of every struct declared in an ouro.toml manifest against its registered capabilities`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	checkCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	checkCmd.Flags().Bool("no-warnings", false, "ignore warnings in diagnostics")
	checkCmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	checkCmd.Flags().Bool("exclusive-borrows", false, "enable exclusive (mutable) borrow checking")
	checkCmd.Flags().Bool("schema-cache", false, "enable persistent schema cache (experimental)")
	checkCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	noWarnings, err := cmd.Flags().GetBool("no-warnings")
	if err != nil {
		return fmt.Errorf("failed to get no-warnings flag: %w", err)
	}
	warningsAsErrors, err := cmd.Flags().GetBool("warnings-as-errors")
	if err != nil {
		return fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	exclusiveBorrows, err := cmd.Flags().GetBool("exclusive-borrows")
	if err != nil {
		return fmt.Errorf("failed to get exclusive-borrows flag: %w", err)
	}
	useCache, err := cmd.Flags().GetBool("schema-cache")
	if err != nil {
		return fmt.Errorf("failed to get schema-cache flag: %w", err)
	}
	withNotes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	colorMode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	switch format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unknown format %q (must be pretty or json)", format)
	}

	manifestPath := ""
	if len(args) == 1 {
		manifestPath = args[0]
	} else {
		path, found, err := manifest.Find(".")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no %s found; pass the manifest path explicitly", manifest.FileName)
		}
		manifestPath = path
	}

	fs := source.NewFileSet()
	m, err := manifest.Load(manifestPath, fs)
	if err != nil {
		return err
	}

	var cache *driver.SchemaCache
	if useCache {
		cache, err = driver.OpenSchemaCache("ouro")
		if err != nil {
			return fmt.Errorf("failed to open schema cache: %w", err)
		}
		// Only clean runs are cached (see the Put below), so a hit is a pass.
		var cached driver.CachePayload
		if hit, err := cache.Get(m.Digest, &cached); err == nil && hit {
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "ouro: %s unchanged, %d structs cached\n",
					manifestPath, len(cached.Structs))
			}
			return nil
		}
	}

	out, err := driver.CheckManifest(cmd.Context(), m, fs, driver.CheckOptions{
		MaxDiagnostics:   maxDiagnostics,
		Jobs:             jobs,
		ExclusiveBorrows: exclusiveBorrows,
	})
	if err != nil {
		return err
	}

	bag := out.MergedBag()
	if noWarnings || warningsAsErrors {
		bag = filterWarnings(bag, noWarnings, warningsAsErrors)
	}

	w := cmd.OutOrStdout()
	switch format {
	case "json":
		if err := diagfmt.JSON(w, bag, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			IncludeNotes:     withNotes,
			Max:              maxDiagnostics,
		}); err != nil {
			return err
		}
	default:
		diagfmt.Pretty(w, bag, fs, diagfmt.PrettyOpts{
			Color:     colorEnabled(colorMode, os.Stdout),
			ShowNotes: withNotes,
		})
		if !quiet {
			printSummary(w, out)
		}
	}

	if cache != nil && !out.HasErrors() {
		payload := driver.BuildPayload(m, out.Engine.Interner(), out.Results)
		if err := cache.Put(m.Digest, payload); err != nil && !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "ouro: schema cache write failed: %v\n", err)
		}
	}

	if bag.HasErrors() {
		os.Exit(1)
	}
	return nil
}

func printSummary(w interface{ Write([]byte) (int, error) }, out *driver.CheckOutput) {
	valid := 0
	for _, r := range out.Results {
		if r.Schema != nil {
			valid++
		}
	}
	fmt.Fprintf(w, "ouro: %d of %d structs valid\n", valid, len(out.Results))
}
