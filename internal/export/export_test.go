package export

import (
	"encoding/csv"
	"encoding/json"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
	"github.com/rovshanmuradov/solana-lp-agent/internal/summary"
	"github.com/rovshanmuradov/solana-lp-agent/internal/valuation"
)

var (
	mintA = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	mintB = solana.SolMint
	day   = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
)

func testSummary(sig string, at time.Time, failed bool, usd string, mints ...solana.PublicKey) *summary.Summary {
	units := uint64(52_000)
	s := &summary.Summary{
		Signature:            sig,
		Slot:                 uint64(at.Unix()),
		BlockTime:            &at,
		ComputeUnitsConsumed: &units,
		Fee:                  5_000,
		PriorityFee:          1_000,
		Failed:               failed,
		Transfers:            []*decoder.TokenTransfer{{Mint: mintA, Amount: big.NewInt(1)}},
		USDNetDelta:          decimal.RequireFromString(usd),
	}
	for i, m := range mints {
		s.Deltas = append(s.Deltas, valuation.TokenDelta{Mint: m, Raw: big.NewInt(int64(i + 1))})
	}
	return s
}

func generateTestSummaries() []*summary.Summary {
	return []*summary.Summary{
		testSummary("sig3", day.Add(15*time.Hour), false, "-4.5", mintB),
		testSummary("sig1", day.Add(9*time.Hour), false, "10.25", mintA, mintB),
		testSummary("sig2", day.Add(9*time.Hour+30*time.Minute), true, "0", mintA),
		testSummary("sig4", day.Add(30*time.Hour), false, "1", mintA),
	}
}

func TestSummaryExportCSV(t *testing.T) {
	exporter := NewSummaryExporter(zap.NewNop())
	outputPath, err := exporter.Export(generateTestSummaries(), ExportOptions{
		Format:    FormatCSV,
		OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to export summaries: %v", err)
	}

	file, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("Failed to open export: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}

	if len(rows) != 5 {
		t.Fatalf("Expected header + 4 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeaders(), ",") {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	order := []string{rows[1][0], rows[2][0], rows[3][0], rows[4][0]}
	if strings.Join(order, ",") != "sig1,sig2,sig3,sig4" {
		t.Errorf("Rows are not sorted by block time: %v", order)
	}
	if rows[1][8] != mintA.String()+":1;"+mintB.String()+":2" {
		t.Errorf("Unexpected deltas column: %s", rows[1][8])
	}
	if rows[1][9] != "10.25" {
		t.Errorf("Unexpected usd column: %s", rows[1][9])
	}
}

func TestSummaryExportJSONTotals(t *testing.T) {
	exporter := NewSummaryExporter(zap.NewNop())
	outputPath, err := exporter.Export(generateTestSummaries(), ExportOptions{
		Format:      FormatJSON,
		OnlySuccess: true,
		OutputDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to export summaries: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read export file: %v", err)
	}
	var decoded struct {
		SummaryCount int          `json:"summary_count"`
		Totals       ExportTotals `json:"totals"`
	}
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}

	if decoded.SummaryCount != 3 {
		t.Errorf("Expected 3 successful summaries, got %d", decoded.SummaryCount)
	}
	if decoded.Totals.Failed != 0 || decoded.Totals.TotalFees != 15_000 {
		t.Errorf("Unexpected totals: %+v", decoded.Totals)
	}
	if !decoded.Totals.USDNetDelta.Equal(decimal.RequireFromString("6.75")) {
		t.Errorf("Expected usd total 6.75, got %s", decoded.Totals.USDNetDelta)
	}
	if decoded.Totals.UniqueMints != 2 {
		t.Errorf("Expected 2 unique mints, got %d", decoded.Totals.UniqueMints)
	}
}

func TestExportFilters(t *testing.T) {
	exporter := NewSummaryExporter(zap.NewNop())
	summaries := generateTestSummaries()

	tests := []struct {
		name    string
		options ExportOptions
		want    int
	}{
		{"no filters", ExportOptions{}, 4},
		{"mint", ExportOptions{MintFilter: mintB.String()}, 2},
		{"time window", ExportOptions{StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour)}, 2},
		{"success only", ExportOptions{OnlySuccess: true}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(exporter.filter(summaries, tt.options)); got != tt.want {
				t.Errorf("filter() = %d summaries, want %d", got, tt.want)
			}
		})
	}

	_, err := exporter.Export(summaries, ExportOptions{Format: FormatCSV, MintFilter: "nothing", OutputDir: t.TempDir()})
	if err == nil {
		t.Error("Expected error when nothing matches")
	}
	_, err = exporter.Export(summaries, ExportOptions{Format: "xml", OutputDir: t.TempDir()})
	if err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestExportDailyReport(t *testing.T) {
	exporter := NewSummaryExporter(zap.NewNop())
	dir := t.TempDir()

	path, err := exporter.ExportDailyReport(generateTestSummaries(), day.Add(12*time.Hour), dir)
	if err != nil {
		t.Fatalf("Failed to export daily report: %v", err)
	}
	if !strings.HasSuffix(path, "daily_report_20240314.json") {
		t.Errorf("Unexpected report path: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	var report DailyReport
	if err := json.Unmarshal(content, &report); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if report.Totals.Transactions != 3 {
		t.Errorf("Expected 3 summaries for the day, got %d", report.Totals.Transactions)
	}
	if len(report.HourlyBreakdown) != 2 || report.HourlyBreakdown[0].Hour != 9 || report.HourlyBreakdown[0].Transactions != 2 {
		t.Errorf("Unexpected hourly breakdown: %+v", report.HourlyBreakdown)
	}

	empty, err := exporter.ExportDailyReport(generateTestSummaries(), day.AddDate(0, 0, 5), dir)
	if err != nil || empty != "" {
		t.Errorf("Expected empty result for a day without summaries, got %q, %v", empty, err)
	}
}
