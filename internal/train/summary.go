package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeSummary renders the per-horizon results as a markdown table and
// writes it to {base}/training_summary_{run_id}.md — the Go-native
// analogue of the original implementation's Prefect markdown artifact
// (spec §4.7 step 7).
func writeSummary(base, runID string, results []HorizonResult) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("train: mkdir summary dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Training run %s\n\n", runID)
	fmt.Fprintf(&b, "| Horizon | MAE | RMSE | MAPE | R² | Naive MAE | Naive RMSE | Path | Error |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|---|---|---|\n")
	for _, r := range results {
		errCell := ""
		if r.Err != nil {
			errCell = r.Err.Error()
		}
		fmt.Fprintf(&b, "| %d | %.3f | %.3f | %.2f%% | %.3f | %.3f | %.3f | %s | %s |\n",
			r.Horizon, r.Metrics.MAE, r.Metrics.RMSE, r.Metrics.MAPE, r.Metrics.R2,
			r.NaiveMAE, r.NaiveRMSE, r.ModelPath, errCell)
	}

	path := filepath.Join(base, fmt.Sprintf("training_summary_%s.md", runID))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("train: write summary: %w", err)
	}
	return path, nil
}
