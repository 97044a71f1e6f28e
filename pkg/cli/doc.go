// Package cli provides the shared plumbing for the koe command line
// tool: result output in YAML or JSON, request file loading, status
// printing, and a small box-drawing TUI frame for live views.
//
// Example:
//
//	cli.Output(entries, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
//	cli.PrintSuccess("enrolled %q", name)
package cli
