package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/tradecore/pkg/optimization"
	"github.com/ducminhle1904/tradecore/pkg/validation"
)

func fitness(v float64) string {
	if v == optimization.FailedFitness {
		return "failed"
	}
	return fmt.Sprintf("%.4f", v)
}

// OutputOptimization prints the best parameter set and per-generation progress
func OutputOptimization(w io.Writer, res *optimization.Result) {
	if res == nil || res.Best == nil {
		fmt.Fprintln(w, "optimization produced no result")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BEST PARAMETERS")
	t.SetStyle(table.StyleRounded)
	names := make([]string, 0, len(res.Best.Params))
	for k := range res.Best.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{name, fmt.Sprintf("%g", res.Best.Params[name])})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Fitness", fitness(res.Best.Fitness)})
	t.AppendRow(table.Row{"Evaluations", res.Evaluations})
	t.Render()

	g := table.NewWriter()
	g.SetOutputMirror(w)
	g.SetTitle("GENERATIONS")
	g.SetStyle(table.StyleRounded)
	g.AppendHeader(table.Row{"Gen", "Best", "Average", "Evaluations"})
	for _, s := range res.Generations {
		g.AppendRow(table.Row{s.Generation, fitness(s.BestFitness), fitness(s.AverageFitness), s.Evaluations})
	}
	g.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	g.Render()
}

// OutputWalkForward prints one row per fold and the summary verdict
func OutputWalkForward(w io.Writer, s *validation.Summary) {
	if s == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	title := "WALK-FORWARD (HOLDOUT)"
	if s.Rolling {
		title = "WALK-FORWARD (ROLLING)"
	}
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Fold", "Train", "Test", "Train Return", "Test Return", "Train DD", "Test DD"})
	for _, r := range s.Results {
		t.AppendRow(table.Row{
			r.Fold.Index,
			r.Fold.Train.String(),
			r.Fold.Test.String(),
			pct(r.TrainReturn),
			pct(r.TestReturn),
			pct(r.TrainDrawdown),
			pct(r.TestDrawdown),
		})
	}
	t.AppendFooter(table.Row{
		"AVG", "", "",
		pct(s.AverageTrainReturn),
		fmt.Sprintf("%s ± %s", pct(s.AverageTestReturn), pct(s.TestReturnStdDev)),
		pct(s.AverageTrainDrawdown),
		pct(s.AverageTestDrawdown),
	})
	t.Render()

	fmt.Fprintf(w, "Profitable test folds: %d/%d\n", s.ProfitableTestFolds, len(s.Results))
	fmt.Fprintf(w, "Return degradation:    %s\n", pct(s.ReturnDegradation))
	fmt.Fprintf(w, "Overfitting risk:      %s (robust: %t)\n", s.OverfittingRisk, s.IsRobust)
}

// WriteJSON writes any report document as indented JSON
func WriteJSON(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
