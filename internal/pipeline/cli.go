package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/analytics"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures the global logger to write to stderr and, when
// logFile is set, to that file as well.
func SetupLogging(format, level, logFile string) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, file)
		closer = file
	}

	if err := logger.Init(logger.WithFormat(format), logger.WithOutput(out)); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.SetLevelString(level); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closer, nil
}

// ShowHelp prints usage information for the pipeline tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `NBA Player Similarity Pipeline
==============================

Cleans raw season CSVs, standardizes them, and persists the stat tables and
distance indexes the query server reads.

Usage:
  pipeline [options] [command]

Commands:
  all       clean and build every season, then combine and build "all" (default)
  clean     clean every season and persist the stat tables
  combine   combine the persisted season tables into "all"
  build     build distance indexes for the persisted scopes given by -scope
  query     run a SQL query against one scope's stats through DuckDB

Options:
  -seasons string
        Comma separated season tags (default from config)
  -scope string
        Comma separated scopes for build, or the scope for query (default "all")
  -sql string
        SQL to run for query; the scope's table is exposed as "players"
  -log string
        Also write logs to this file
  -help
        Show this help message

Configuration is read from NBASIM_CONFIG (YAML), .env and NBASIM_* variables.

Examples:
  # Full rebuild with the default seasons
  pipeline

  # Rebuild two seasons only
  pipeline -seasons 1988,1992 clean
  pipeline -scope 1988,1992 build

  # Top scorers of 1988
  pipeline -scope 1988 -sql 'SELECT player, PTS FROM players ORDER BY PTS DESC LIMIT 5' query
`)
}

// PrintReport writes one line per scope of rep.
func PrintReport(w io.Writer, rep *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tPLAYERS\tFEATURES\tDROPPED\tTOOK")
	for _, s := range rep.Scopes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Scope, s.Players, s.Columns, strings.Join(s.Dropped, ","), s.Took)
	}
	fmt.Fprintf(tw, "run %s finished in %s\n", rep.RunID, rep.Took)
	return tw.Flush()
}

// PrintResult writes a query result as an aligned table.
func PrintResult(w io.Writer, res *analytics.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	cells := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) && row[i] != nil {
				cells[i] = fmt.Sprint(row[i])
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
