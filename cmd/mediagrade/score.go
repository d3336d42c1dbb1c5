package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/jobs"
)

// scoreLine is one row of the -score table.
type scoreLine struct {
	path   string
	result *analysis.Result
	err    error
}

// scorePaths analyses paths with at most workers in flight and returns one
// line per path in input order. Per-file errors are kept on the line.
func scorePaths(ctx context.Context, analyzer jobs.Analyzer, paths []string, workers int) ([]scoreLine, error) {
	lines := make([]scoreLine, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs.ClampWorkerCount(workers))

	for i, path := range paths {
		g.Go(func() error {
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			result, err := analyzer.Analyze(gctx, abs)
			lines[i] = scoreLine{path: path, result: result, err: err}
			// Only cancellation aborts the batch
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

// printScores writes lines as an aligned table and returns the number of
// files that could not be scored.
func printScores(w io.Writer, lines []scoreLine) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTYPE\tSIZE\tRESOLUTION\tSCORE\tGRADE\tNOTE")

	failed := 0
	for _, l := range lines {
		if l.err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%v\n", l.path, l.err)
			continue
		}
		r := l.result
		res := r.Resolution
		if res == "" {
			res = "-"
		}
		note := ""
		switch {
		case r.Fallback:
			note = "fallback: " + r.FallbackReason
		case r.Cached:
			note = "cached"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			l.path, r.MediaType, humanize.Bytes(uint64(r.FileSizeKB)*1024), res, r.Percentage, r.Grade, note)
	}

	tw.Flush()
	return failed
}
