package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"surgeval/lib"

	"github.com/akamensky/argparse"
	"github.com/fatih/color"
	"github.com/k0kubun/go-ansi"
)

func main() {
	parser := argparse.NewParser("heichole", "Evaluate instrument detection and verb recognition against HeiChole labels")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML config file", Required: true})
	videos := parser.String("v", "videos", &argparse.Options{Help: "Comma-separated video ids, overrides the config", Required: false})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Output directory, overrides the config", Required: false})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := lib.GetConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading config:", err)
		os.Exit(1)
	}
	logger := lib.NewLogger(os.Stderr, cfg.LogLevel)
	if *videos != "" {
		cfg.EvaluateBase.Videos = strings.Split(*videos, ",")
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		logger.Error("invalid paths", "err", err)
		os.Exit(1)
	}
	detectorCfg := cfg.DetectorConfig(paths)
	logger.Info("starting evaluation",
		"detector", detectorCfg.Weights,
		"verb_model", paths.VerbCheckpoint,
		"dataset", paths.DatasetRoot,
		"videos", cfg.EvaluateBase.Videos,
	)

	detector, err := lib.NewPythonDetector(detectorCfg)
	if err != nil {
		logger.Error("loading detector", "err", err)
		os.Exit(1)
	}
	defer detector.Close()
	verbs, err := lib.NewPythonVerbClassifier(cfg.VerbConfig(paths))
	if err != nil {
		logger.Error("loading verb classifier", "err", err)
		os.Exit(1)
	}
	defer verbs.Close()

	evaluator := lib.NewEvaluator(detector, verbs, cfg.EvalOptions(paths), logger)
	evaluator.Progress = ansi.NewAnsiStdout()

	start := time.Now()
	run, runErr := evaluator.Run(cfg.EvaluateBase.Videos)
	logger.Info("evaluation finished", "elapsed", time.Since(start).Round(time.Second), "failed", len(run.Failed))

	color.Output = ansi.NewAnsiStdout()
	lib.PrintRun(color.Output, run)

	saveDir := filepath.Join(paths.OutputDir, detectorCfg.Dir())
	if err := lib.SaveResults(filepath.Join(saveDir, "results.json"), run); err != nil {
		logger.Error("saving results", "err", err)
		os.Exit(1)
	}
	if err := lib.SaveYaml(cfg, filepath.Join(saveDir, "config.yaml")); err != nil {
		logger.Error("saving config", "err", err)
	}
	if cfg.Visualize {
		if err := lib.SaveAPBarChart(filepath.Join(saveDir, "instrument_ap.png"), "Instrument AP", run.Instruments); err != nil {
			logger.Warn("instrument plot", "err", err)
		}
		if err := lib.SaveAPBarChart(filepath.Join(saveDir, "verb_ap.png"), "Verb AP", run.Verbs); err != nil {
			logger.Warn("verb plot", "err", err)
		}
	}
	logger.Info("results saved", "dir", saveDir)

	if runErr != nil {
		logger.Error("evaluation aborted", "err", runErr)
		os.Exit(1)
	}
}
