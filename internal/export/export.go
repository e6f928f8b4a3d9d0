package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/summary"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format      ExportFormat
	StartTime   time.Time
	EndTime     time.Time
	MintFilter  string // only summaries that moved this mint
	OnlySuccess bool   // skip failed transactions
	OutputDir   string
}

// SummaryExporter writes transaction summaries to disk.
type SummaryExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSummaryExporter creates a new summary exporter
func NewSummaryExporter(logger *zap.Logger) *SummaryExporter {
	return &SummaryExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// Export writes the summaries matching options and returns the file path.
func (se *SummaryExporter) Export(summaries []*summary.Summary, options ExportOptions) (string, error) {
	filtered := se.filter(summaries, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no summaries match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return timestamp(filtered[i]).Before(timestamp(filtered[j]))
	})

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, se.generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = se.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = se.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	se.logger.Info("Summaries exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

// timestamp - время блока, для ещё не известного времени используется момент вычисления.
func timestamp(s *summary.Summary) time.Time {
	if s.BlockTime != nil {
		return *s.BlockTime
	}
	return s.ComputedAt
}

func (se *SummaryExporter) filter(summaries []*summary.Summary, options ExportOptions) []*summary.Summary {
	var filtered []*summary.Summary
	for _, s := range summaries {
		if s == nil {
			continue
		}
		ts := timestamp(s)
		if !options.StartTime.IsZero() && ts.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && ts.After(options.EndTime) {
			continue
		}
		if options.MintFilter != "" && s.NetDelta(options.MintFilter) == nil {
			continue
		}
		if options.OnlySuccess && s.Failed {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func (se *SummaryExporter) generateFilename(options ExportOptions) string {
	prefix := "summaries_all"
	if options.MintFilter != "" {
		mint := options.MintFilter
		if len(mint) > 8 {
			mint = mint[:8]
		}
		prefix = "summaries_" + mint
	}
	return fmt.Sprintf("%s_%s.%s", prefix, se.now().Format("20060102_150405"), options.Format)
}

// CSVHeaders returns the header row of the CSV export.
func CSVHeaders() []string {
	return []string{
		"signature", "slot", "block_time", "failed", "fee", "priority_fee",
		"compute_units", "transfers", "deltas", "usd_net_delta",
	}
}

func csvRow(s *summary.Summary) []string {
	blockTime := ""
	if s.BlockTime != nil {
		blockTime = s.BlockTime.UTC().Format(time.RFC3339)
	}
	units := ""
	if s.ComputeUnitsConsumed != nil {
		units = strconv.FormatUint(*s.ComputeUnitsConsumed, 10)
	}
	deltas := make([]string, 0, len(s.Deltas))
	for _, d := range s.Deltas {
		deltas = append(deltas, d.Mint.String()+":"+d.Raw.String())
	}
	return []string{
		s.Signature,
		strconv.FormatUint(s.Slot, 10),
		blockTime,
		strconv.FormatBool(s.Failed),
		strconv.FormatUint(s.Fee, 10),
		strconv.FormatUint(s.PriorityFee, 10),
		units,
		strconv.Itoa(len(s.Transfers)),
		strings.Join(deltas, ";"),
		s.USDNetDelta.String(),
	}
}

func (se *SummaryExporter) exportToCSV(summaries []*summary.Summary, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, s := range summaries {
		if err := writer.Write(csvRow(s)); err != nil {
			return fmt.Errorf("failed to write summary %s: %w", s.Signature, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (se *SummaryExporter) exportToJSON(summaries []*summary.Summary, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime   time.Time          `json:"export_time"`
		SummaryCount int                `json:"summary_count"`
		Totals       ExportTotals       `json:"totals"`
		Summaries    []*summary.Summary `json:"summaries"`
	}{
		ExportTime:   se.now(),
		SummaryCount: len(summaries),
		Totals:       CalculateTotals(summaries),
		Summaries:    summaries,
	}
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportTotals contains aggregate statistics for exported summaries
type ExportTotals struct {
	Transactions      int             `json:"transactions"`
	Failed            int             `json:"failed"`
	TotalFees         uint64          `json:"total_fees"`
	TotalPriorityFees uint64          `json:"total_priority_fees"`
	UniqueMints       int             `json:"unique_mints"`
	USDNetDelta       decimal.Decimal `json:"usd_net_delta"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
}

// CalculateTotals expects summaries sorted by time.
func CalculateTotals(summaries []*summary.Summary) ExportTotals {
	totals := ExportTotals{Transactions: len(summaries), USDNetDelta: decimal.Zero}
	if len(summaries) == 0 {
		return totals
	}
	totals.StartDate = timestamp(summaries[0])
	totals.EndDate = timestamp(summaries[len(summaries)-1])

	mints := make(map[string]struct{})
	for _, s := range summaries {
		if s.Failed {
			totals.Failed++
		}
		totals.TotalFees += s.Fee
		totals.TotalPriorityFees += s.PriorityFee
		totals.USDNetDelta = totals.USDNetDelta.Add(s.USDNetDelta)
		for _, d := range s.Deltas {
			mints[d.Mint.String()] = struct{}{}
		}
	}
	totals.UniqueMints = len(mints)
	return totals
}

// DailyReport groups one day of summaries with an hourly breakdown.
type DailyReport struct {
	Date            time.Time          `json:"date"`
	Totals          ExportTotals       `json:"totals"`
	HourlyBreakdown []HourlyStats      `json:"hourly_breakdown"`
	Summaries       []*summary.Summary `json:"summaries"`
}

type HourlyStats struct {
	Hour         int             `json:"hour"`
	Transactions int             `json:"transactions"`
	Fees         uint64          `json:"fees"`
	USDNetDelta  decimal.Decimal `json:"usd_net_delta"`
}

// ExportDailyReport writes daily_report_YYYYMMDD.json; returns "" when the day is empty.
func (se *SummaryExporter) ExportDailyReport(summaries []*summary.Summary, date time.Time, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	filtered := se.filter(summaries, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24*time.Hour - time.Nanosecond),
	})
	if len(filtered) == 0 {
		se.logger.Info("No summaries for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return timestamp(filtered[i]).Before(timestamp(filtered[j]))
	})

	report := DailyReport{
		Date:            startOfDay,
		Totals:          CalculateTotals(filtered),
		HourlyBreakdown: hourlyBreakdown(filtered, date.Location()),
		Summaries:       filtered,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	se.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("summaries", len(filtered)))
	return outputPath, nil
}

func hourlyBreakdown(summaries []*summary.Summary, loc *time.Location) []HourlyStats {
	hourly := make(map[int]*HourlyStats)
	for _, s := range summaries {
		hour := timestamp(s).In(loc).Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour, USDNetDelta: decimal.Zero}
			hourly[hour] = stats
		}
		stats.Transactions++
		stats.Fees += s.Fee
		stats.USDNetDelta = stats.USDNetDelta.Add(s.USDNetDelta)
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}
