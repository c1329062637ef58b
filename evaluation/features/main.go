package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"surgeval/lib"

	"github.com/akamensky/argparse"
	"github.com/k0kubun/go-ansi"
	"github.com/mitchellh/colorstring"
)

func main() {
	parser := argparse.NewParser("features", "Extract backbone features of detected instruments and plot the feature space")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML config file", Required: true})
	video := parser.String("v", "video", &argparse.Options{Help: "Video id, overrides the config", Required: false})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Directory for the feature set and plot", Required: false, Default: "feature_spaces"})
	dsn := parser.String("", "dsn", &argparse.Options{Help: "Postgres connection string; also store rows in pgvector", Required: false})
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
	if *video != "" {
		cfg.FeatureBase.Video = *video
	}
	if *dsn != "" {
		cfg.FeatureBase.DSN = *dsn
	}
	if cfg.FeatureBase.Video == "" {
		logger.Error("no video configured")
		os.Exit(1)
	}

	paths, err := cfg.ResolveDetectorPaths()
	if err != nil {
		logger.Error("invalid paths", "err", err)
		os.Exit(1)
	}
	frames, err := lib.ListFrames(filepath.Join(paths.FramesRoot, cfg.FeatureBase.Video), cfg.EvaluateBase.FrameExts)
	if err != nil {
		logger.Error("listing frames", "err", err)
		os.Exit(1)
	}

	detector, err := lib.NewPythonDetector(cfg.DetectorConfig(paths))
	if err != nil {
		logger.Error("loading detector", "err", err)
		os.Exit(1)
	}
	defer detector.Close()
	featureCfg := cfg.FeatureConfig(paths)
	extractor, err := lib.NewPythonFeatureExtractor(featureCfg)
	if err != nil {
		logger.Error("loading feature extractor", "err", err)
		os.Exit(1)
	}
	defer extractor.Close()

	set, err := lib.CollectFeatures(cfg.FeatureBase.Video, featureCfg.Layer, frames, detector, extractor, logger, ansi.NewAnsiStdout())
	if err != nil {
		logger.Error("extracting features", "err", err)
		os.Exit(1)
	}
	if set.Len() == 0 {
		return
	}

	ctx := context.Background()
	name := lib.FeatureSetName(cfg.FeatureBase.OutName, cfg.FeatureBase.Video, featureCfg.Layer)
	stores := []lib.FeatureStore{lib.JSONFeatureStore{Dir: *outDir}}
	if cfg.FeatureBase.DSN != "" {
		pg, err := lib.NewPostgresFeatureStore(ctx, cfg.FeatureBase.DSN)
		if err != nil {
			logger.Error("connecting feature store", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		stores = append(stores, pg)
	}
	for _, store := range stores {
		if err := store.Save(ctx, name, set); err != nil {
			logger.Error("saving features", "name", name, "err", err)
			os.Exit(1)
		}
	}

	out := ansi.NewAnsiStdout()
	colorstring.Fprintf(out, "\n[cyan]Feature statistics[reset]\n")
	fmt.Fprintf(out, "Feature dimension: %d\n", set.Dim())
	fmt.Fprintln(out, "Features per instrument:")
	for _, c := range lib.LabelCounts(set) {
		fmt.Fprintf(out, colorstring.Color("- [green]%s[reset]: %d\n"), c.Label, c.Count)
	}

	points, err := lib.Project2D(set)
	if err != nil {
		logger.Error("projecting features", "err", err)
		os.Exit(1)
	}
	plotPath := filepath.Join(*outDir, "raw_feature_space.png")
	title := fmt.Sprintf("Raw feature space (layer %d) by instrument", featureCfg.Layer)
	if err := lib.SaveFeatureScatter(plotPath, title, points, set.Labels); err != nil {
		logger.Error("plotting features", "err", err)
		os.Exit(1)
	}
	logger.Info("feature space saved", "plot", plotPath, "features", filepath.Join(*outDir, name+".json"))
}
