package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ouro/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "ouro",
	Short: "Self-referential struct verification engine",
	Long:  `ouro validates struct declarations whose fields borrow from co-located heap-stable bases`,
}

func init() {
	// Версия для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func colorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	return isTerminal(f)
}
