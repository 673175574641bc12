// Command backtest runs the Auto-Close Backtester over one trader's decision
// journal and writes a ranked report, or summarizes the most recent reports
// across a fixed set of traders.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/backtest"
	"nof0-api/pkg/journal/localstore"
	"nof0-api/pkg/reconstruct"
)

// defaultThresholds mirrors the threshold family the teacher's manual
// strategy sweeps used: 0 is the historical (no-auto-close) baseline.
var defaultThresholds = []float64{0, 1, 2, 3, 5, 8, 13, 21}

// output is the JSON document written to
// <decision_log_dir>/backtest_<yyyyMMdd_HHmmss>.json.
type output struct {
	TraderID    string          `json:"trader_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	TotalCycles int             `json:"total_cycles"`
	Report      backtest.Report `json:"report"`
}

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "summarize":
		runSummarize(os.Args[2:])
	default:
		runBacktest(os.Args[1:])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  backtest -trader <id> -dir <log_dir>")
	fmt.Fprintln(os.Stderr, "  backtest summarize -dir <log_dir> -traders <id1,id2,...>")
}

func runBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	traderID := fs.String("trader", "", "trader id to backtest")
	dir := fs.String("dir", "", "absolute path to the trader's decision journal directory")
	if err := fs.Parse(args); err != nil {
		fatalf("parse flags: %v", err)
	}
	if strings.TrimSpace(*traderID) == "" || strings.TrimSpace(*dir) == "" {
		usage()
		os.Exit(2)
	}
	if !filepath.IsAbs(*dir) {
		fatalf("-dir must be an absolute path, got %q", *dir)
	}

	path, err := writeBacktestReport(*traderID, *dir)
	if err != nil {
		fatalf("backtest trader %s: %v", *traderID, err)
	}
	logx.Infof("backtest report written to %s", path)
}

func writeBacktestReport(traderID, dir string) (string, error) {
	store, err := localstore.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		return "", fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.All(traderID)
	if err != nil {
		return "", fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no records found for trader %s", traderID)
	}

	trades := reconstruct.Reconstruct(records)
	report := backtest.RunAutoCloseBacktest(trades, defaultThresholds)

	out := output{
		TraderID:    traderID,
		PeriodStart: records[0].Timestamp,
		PeriodEnd:   records[len(records)-1].Timestamp,
		TotalCycles: len(records),
		Report:      report,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	name := fmt.Sprintf("backtest_%s.json", out.PeriodEnd.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func runSummarize(args []string) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	dir := fs.String("dir", "", "directory containing backtest_*.json reports")
	tradersRaw := fs.String("traders", "", "comma-separated fixed list of trader ids to summarize")
	if err := fs.Parse(args); err != nil {
		fatalf("parse flags: %v", err)
	}
	traderIDs := splitNonEmpty(*tradersRaw)
	if strings.TrimSpace(*dir) == "" || len(traderIDs) == 0 {
		usage()
		os.Exit(2)
	}

	rows := make([]summaryRow, 0, len(traderIDs))
	for _, id := range traderIDs {
		row, err := latestSummary(*dir, id)
		if err != nil {
			logx.Errorf("summarize trader %s: %v", id, err)
			continue
		}
		rows = append(rows, row)
	}
	printTable(rows)
}

type summaryRow struct {
	TraderID    string
	ReportFile  string
	TotalCycles int
	BestSharpe  backtest.StrategyResult
}

func latestSummary(dir, traderID string) (summaryRow, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "backtest_*.json"))
	if err != nil {
		return summaryRow{}, fmt.Errorf("glob reports: %w", err)
	}
	sort.Strings(matches)

	for i := len(matches) - 1; i >= 0; i-- {
		data, err := os.ReadFile(matches[i])
		if err != nil {
			continue
		}
		var out output
		if err := json.Unmarshal(data, &out); err != nil {
			continue
		}
		if out.TraderID != traderID {
			continue
		}
		return summaryRow{
			TraderID:    out.TraderID,
			ReportFile:  filepath.Base(matches[i]),
			TotalCycles: out.TotalCycles,
			BestSharpe:  out.Report.BestBySharpe,
		}, nil
	}
	return summaryRow{}, fmt.Errorf("no backtest_*.json report found for trader %s under %s", traderID, dir)
}

func printTable(rows []summaryRow) {
	fmt.Printf("%-16s %-28s %10s %10s %10s %10s\n", "TRADER", "REPORT", "CYCLES", "THRESH", "SHARPE", "TOTAL_PNL")
	for _, r := range rows {
		fmt.Printf("%-16s %-28s %10d %10.2f %10.3f %10.2f\n",
			r.TraderID, r.ReportFile, r.TotalCycles, r.BestSharpe.ThresholdPct, r.BestSharpe.Sharpe, r.BestSharpe.TotalPnL)
	}
}

func splitNonEmpty(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
