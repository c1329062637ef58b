package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"surgeval/lib"

	"github.com/akamensky/argparse"
)

// Sweeps the score threshold of a saved evaluation for instruments and verbs.
// Instrument scores below the detector threshold used during evaluation were
// never recorded, so lower instrument thresholds all score alike.
func main() {
	parser := argparse.NewParser("Threshold", "Find the best score threshold of a saved evaluation")
	resultsPath := parser.String("r", "results", &argparse.Options{Help: "results.json written by heichole", Required: true})
	saveRoot := parser.String("o", "output", &argparse.Options{Help: "Directory for plots and find_result.json", Required: true})
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML config file with the class lists", Required: false})
	maxDescentRound := parser.Int("", "max-descent", &argparse.Options{Help: "Stop after this many thresholds in a row below the best F1", Required: false, Default: 10})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg := lib.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = lib.GetConfig(*configPath)
		if err != nil {
			fmt.Println("Error reading config:", err)
			os.Exit(1)
		}
	}
	logger := lib.NewLogger(os.Stderr, cfg.LogLevel)

	if err := os.MkdirAll(*saveRoot, 0755); err != nil {
		logger.Error("creating save root", "err", err)
		os.Exit(1)
	}

	run, err := lib.LoadResults(*resultsPath)
	if err != nil {
		logger.Error("loading results", "path", *resultsPath, "err", err)
		os.Exit(1)
	}
	records := run.Records()

	thresholds := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 0.96, 0.97, 0.98, 0.99}
	searches := []struct {
		kind    lib.LabelKind
		classes []string
	}{
		{lib.InstrumentLabels, cfg.DetectBase.Classes},
		{lib.VerbLabels, cfg.VerbBase.Classes},
	}

	findResult := make(map[string]lib.SweepResult)
	for _, search := range searches {
		sweep := lib.SweepThresholds(records, search.kind, search.classes, thresholds, *maxDescentRound)
		savePath := filepath.Join(*saveRoot, string(search.kind)+"_threshold.png")
		title := fmt.Sprintf("Find the best threshold for %s", search.kind)
		if err := lib.SaveThresholdPlot(savePath, title, sweep); err != nil {
			logger.Error("plotting sweep", "kind", search.kind, "err", err)
			os.Exit(1)
		}
		logger.Info("threshold sweep", "kind", search.kind, "best_threshold", sweep.BestThreshold, "best_f1", sweep.BestF1, "plot", savePath)
		findResult[string(search.kind)] = sweep
	}

	jsonData, _ := json.Marshal(findResult)
	fmt.Println(string(jsonData))
	saveResultPath := filepath.Join(*saveRoot, "find_result.json")
	if err := lib.WriteJsonFile(saveResultPath, findResult); err != nil {
		logger.Error("writing find result", "err", err)
		os.Exit(1)
	}
	fmt.Println("JSON data successfully written to " + saveResultPath)
}
