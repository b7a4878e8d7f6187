package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gas-topup-alerts/internal/storage"
)

// Export renders the alert audit trail as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "chain", "address", "balance", "threshold", "suggested_topup", "delivered", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		errMsg := ""
		if alert.Error != nil {
			errMsg = *alert.Error
		}
		record := []string{
			alert.CreatedAt.Format(time.RFC3339),
			alert.Chain,
			alert.Address,
			alert.Balance.String(),
			alert.Threshold.String(),
			alert.SuggestedTopUp.String(),
			fmt.Sprintf("%t", alert.Delivered),
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	byChain := make(map[string][]storage.AlertRecord)
	for _, alert := range alerts {
		byChain[alert.Chain] = append(byChain[alert.Chain], alert)
	}

	chains := make([]string, 0, len(byChain))
	for chain := range byChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	series := make([]chart.Series, 0, 2*len(chains))
	for _, chain := range chains {
		records := byChain[chain]
		x := make([]time.Time, len(records))
		balances := make([]float64, len(records))
		thresholds := make([]float64, len(records))
		for i, rec := range records {
			x[i] = rec.CreatedAt
			balances[i] = rec.Balance.InexactFloat64()
			thresholds[i] = rec.Threshold.InexactFloat64()
		}
		series = append(series,
			chart.TimeSeries{
				Name:    chain + " balance",
				XValues: x,
				YValues: balances,
			},
			chart.TimeSeries{
				Name:    chain + " threshold",
				XValues: x,
				YValues: thresholds,
				Style:   chart.Style{StrokeDashArray: []float64{4.0, 4.0}},
			},
		)
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Balance (native units)",
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
