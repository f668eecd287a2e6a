package cli

import (
	"fmt"
	"io"

	"github.com/trimtab-dev/trimtab/internal/engine"
)

// renderReport writes the human-readable summary of one run: results
// grouped by plugin, in execution order, with every pushed change
// listed under its instance.
func renderReport(w io.Writer, report *engine.Report) {
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	for _, group := range report.ByPlugin() {
		fmt.Fprintf(w, "%s:\n", group.Plugin)
		for _, res := range group.Results {
			fmt.Fprintf(w, "  %s: %s%s\n", res.Ref.Instance, res.State, resultSuffix(res))
			for _, change := range res.Changes {
				fmt.Fprintf(w, "    %s\n", change)
			}
		}
	}
	fmt.Fprintf(w, "%s\n", summaryLine(report))
}

func resultSuffix(res engine.Result) string {
	switch {
	case res.State == engine.StateFailed:
		return " (" + res.Reason + ")"
	case res.Changed:
		return " (updated)"
	default:
		return " (up to date)"
	}
}

func summaryLine(report *engine.Report) string {
	var reconciled, updated, failed int
	for _, res := range report.Results {
		switch res.State {
		case engine.StateFailed:
			failed++
		default:
			reconciled++
			if res.Changed {
				updated++
			}
		}
	}
	return fmt.Sprintf("%d reconciled (%d updated), %d failed", reconciled, updated, failed)
}

// reportData is the JSON shape of a run report.
type reportData struct {
	RunID   string       `json:"run_id"`
	Results []resultData `json:"results"`
	Failed  bool         `json:"failed"`
}

type resultData struct {
	Plugin   string   `json:"plugin"`
	Instance string   `json:"instance"`
	State    string   `json:"state"`
	Changed  bool     `json:"changed"`
	Changes  []string `json:"changes,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func reportToData(report *engine.Report) reportData {
	data := reportData{RunID: report.RunID, Failed: report.Failed()}
	for _, res := range report.Results {
		changes := make([]string, 0, len(res.Changes))
		for _, change := range res.Changes {
			changes = append(changes, change.String())
		}
		data.Results = append(data.Results, resultData{
			Plugin:   res.Ref.Plugin,
			Instance: res.Ref.Instance,
			State:    res.State.String(),
			Changed:  res.Changed,
			Changes:  changes,
			Reason:   res.Reason,
		})
	}
	return data
}
