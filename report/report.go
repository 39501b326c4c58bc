// Package report renders run results as Markdown files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/reviewswarm/core"
)

// FailedReport is written when a run produced no report text.
const FailedReport = "Review failed - no results generated"

// Options control rendering.
type Options struct {
	// Trace appends a summary of the run: status, steps and tool failures.
	Trace bool
}

// OutputPath returns the report path for a source document: the source path
// without its extension plus "_review.md".
func OutputPath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + "_review.md"
}

// Render returns the Markdown for res.
func Render(res core.RunResult, optFns ...func(o *Options)) string {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	body := strings.TrimSpace(res.Report)
	if body == "" {
		body = FailedReport
	}
	if !opts.Trace {
		return body + "\n"
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n---\n\n## Review trace\n\n")
	fmt.Fprintf(&b, "- **Run**: %s\n", res.RunID)
	fmt.Fprintf(&b, "- **Status**: %s\n", res.Status)
	if res.Reason != "" {
		fmt.Fprintf(&b, "- **Reason**: %s\n", res.Reason)
	}
	fmt.Fprintf(&b, "- **Steps**: %d, **Handoffs**: %d\n\n", res.Iterations, res.Handoffs)

	if len(res.History) > 0 {
		b.WriteString("| # | Agent | Tools | Failed | Next |\n|---|---|---|---|---|\n")
		for _, s := range res.History {
			failed := 0
			for _, tc := range s.ToolCalls {
				if tc.Failed() {
					failed++
				}
			}
			fmt.Fprintf(&b, "| %d | %s | %d | %d | %s |\n", s.Index, s.Agent, len(s.ToolCalls), failed, s.Next)
		}
	}

	return b.String()
}

// WriteMarkdown renders res and writes it to path.
func WriteMarkdown(path string, res core.RunResult, optFns ...func(o *Options)) error {
	if err := os.WriteFile(path, []byte(Render(res, optFns...)), 0o644); err != nil { //nolint:gosec // reports are meant to be shared
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
