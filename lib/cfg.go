package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Dims is a width x height pair. In YAML it is either "640x352" or [640, 352].
type Dims [2]int

func ParseDims(dims string) ([2]int, error) {
	parts := strings.Split(dims, "x")
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("bad dims %v", dims)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return [2]int{}, fmt.Errorf("bad dims %v: %w", dims, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return [2]int{}, fmt.Errorf("bad dims %v: %w", dims, err)
	}
	return [2]int{w, h}, nil
}

func (d *Dims) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		dims, err := ParseDims(s)
		if err != nil {
			return err
		}
		*d = dims
		return nil
	}
	var pair [2]int
	if err := unmarshal(&pair); err != nil {
		return fmt.Errorf("bad dims: %w", err)
	}
	*d = pair
	return nil
}

func (d Dims) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%dx%d", d[0], d[1]), nil
}

type Config struct {
	DeviceID  int    `yaml:"deviceid"`
	LogLevel  string `yaml:"loglevel"`
	Visualize bool   `yaml:"visualize"`
	Paths     struct {
		ProjectRoot     string `yaml:"projectroot"`
		DatasetRoot     string `yaml:"datasetroot"`
		FramesRoot      string `yaml:"framesroot"`
		DetectorWeights string `yaml:"detectorweights"`
		VerbCheckpoint  string `yaml:"verbcheckpoint"`
		OutputDir       string `yaml:"outputdir"`
	} `yaml:"paths"`
	DetectBase struct {
		ModelType string   `yaml:"modeltype"`
		Script    string   `yaml:"script"`
		InputSize Dims     `yaml:"inputsize"`
		Threshold float64  `yaml:"threshold"`
		Classes   []string `yaml:"classes"`
	} `yaml:"detectbase"`
	VerbBase struct {
		Script    string     `yaml:"script"`
		InputSize Dims       `yaml:"inputsize"`
		Mean      [3]float64 `yaml:"mean"`
		Std       [3]float64 `yaml:"std"`
		Threshold float64    `yaml:"threshold"`
		Classes   []string   `yaml:"classes"`
	} `yaml:"verbbase"`
	FeatureBase struct {
		Script  string `yaml:"script"`
		Layer   int    `yaml:"layer"`
		Video   string `yaml:"video"`
		OutName string `yaml:"outname"`
		DSN     string `yaml:"dsn"`
	} `yaml:"featurebase"`
	EvaluateBase struct {
		Videos       []string `yaml:"videos"`
		FrameExts    []string `yaml:"frameexts"`
		AbortOnError bool     `yaml:"abortonerror"`
	} `yaml:"evaluatebase"`
}

// ResolvedPaths are absolute, validated locations handed to the evaluators.
type ResolvedPaths struct {
	DatasetRoot     string
	FramesRoot      string
	DetectorWeights string
	VerbCheckpoint  string
	OutputDir       string
}

var detectorScripts = map[string]string{
	"YOLOV8":  "./pylib/detectors/yolov8.py",
	"YOLOV11": "./pylib/detectors/yolov8.py",
}

var pathEnv = []struct {
	name  string
	field func(cfg *Config) *string
}{
	{"SURGEVAL_PROJECT_ROOT", func(cfg *Config) *string { return &cfg.Paths.ProjectRoot }},
	{"SURGEVAL_DATASET_ROOT", func(cfg *Config) *string { return &cfg.Paths.DatasetRoot }},
	{"SURGEVAL_FRAMES_ROOT", func(cfg *Config) *string { return &cfg.Paths.FramesRoot }},
	{"SURGEVAL_DETECTOR_WEIGHTS", func(cfg *Config) *string { return &cfg.Paths.DetectorWeights }},
	{"SURGEVAL_VERB_CHECKPOINT", func(cfg *Config) *string { return &cfg.Paths.VerbCheckpoint }},
	{"SURGEVAL_OUTPUT_DIR", func(cfg *Config) *string { return &cfg.Paths.OutputDir }},
	{"SURGEVAL_FEATURE_DSN", func(cfg *Config) *string { return &cfg.FeatureBase.DSN }},
}

func DefaultConfig() Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.DetectBase.ModelType = "YOLOV8"
	cfg.DetectBase.InputSize = Dims{640, 640}
	cfg.DetectBase.Threshold = 0.25
	cfg.VerbBase.Script = "./pylib/verbs/surgical_action_net.py"
	cfg.VerbBase.InputSize = Dims{224, 224}
	cfg.VerbBase.Mean = [3]float64{0.485, 0.456, 0.406}
	cfg.VerbBase.Std = [3]float64{0.229, 0.224, 0.225}
	cfg.VerbBase.Threshold = 0.5
	cfg.FeatureBase.Script = "./pylib/features/yolo_layer.py"
	cfg.FeatureBase.Layer = 10
	cfg.FeatureBase.OutName = "raw_instrument_features"
	cfg.EvaluateBase.Videos = []string{"VID01"}
	cfg.EvaluateBase.FrameExts = []string{".png", ".jpg"}
	return cfg
}

func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	config.applyEnv()
	if config.DetectBase.Script == "" {
		script, ok := detectorScripts[strings.ToUpper(config.DetectBase.ModelType)]
		if !ok {
			return Config{}, fmt.Errorf("unknown detector model type %q", config.DetectBase.ModelType)
		}
		config.DetectBase.Script = script
	}
	return config, nil
}

func GetConfig(configRoot string) (Config, error) {
	data, err := os.ReadFile(configRoot)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

func (cfg *Config) applyEnv() {
	for _, env := range pathEnv {
		if v := os.Getenv(env.name); v != "" {
			*env.field(cfg) = v
		}
	}
}

func (cfg Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.Paths.ProjectRoot == "" {
		return path
	}
	return filepath.Join(cfg.Paths.ProjectRoot, path)
}

// ResolvePaths validates every required path up front so that a missing
// checkpoint is reported before any video is touched.
func (cfg Config) ResolvePaths() (ResolvedPaths, error) {
	return cfg.resolvePaths(true)
}

// ResolveDetectorPaths is ResolvePaths for tools that never load the verb model.
func (cfg Config) ResolveDetectorPaths() (ResolvedPaths, error) {
	return cfg.resolvePaths(false)
}

func (cfg Config) resolvePaths(needVerb bool) (ResolvedPaths, error) {
	paths := ResolvedPaths{
		DatasetRoot:     cfg.resolve(cfg.Paths.DatasetRoot),
		FramesRoot:      cfg.resolve(cfg.Paths.FramesRoot),
		DetectorWeights: cfg.resolve(cfg.Paths.DetectorWeights),
		VerbCheckpoint:  cfg.resolve(cfg.Paths.VerbCheckpoint),
		OutputDir:       cfg.resolve(cfg.Paths.OutputDir),
	}
	if paths.FramesRoot == "" {
		paths.FramesRoot = filepath.Join(paths.DatasetRoot, "Videos")
	}
	if paths.OutputDir == "" {
		paths.OutputDir = "./result"
	}
	type requiredPath struct{ what, path string }
	required := []requiredPath{{"detector weights", paths.DetectorWeights}}
	if needVerb {
		required = append(required, requiredPath{"verb model checkpoint", paths.VerbCheckpoint})
	}
	required = append(required, requiredPath{"dataset", paths.DatasetRoot})
	for _, p := range required {
		if p.path == "" {
			return ResolvedPaths{}, fmt.Errorf("%w: %s not configured", ErrPathNotFound, p.what)
		}
		if !exists(p.path) {
			return ResolvedPaths{}, fmt.Errorf("%w: %s not found at %s", ErrPathNotFound, p.what, p.path)
		}
	}
	return paths, nil
}

func (cfg Config) DetectorConfig(paths ResolvedPaths) DetectorConfig {
	return DetectorConfig{
		Script:    cfg.resolve(cfg.DetectBase.Script),
		Weights:   paths.DetectorWeights,
		InputSize: [2]int(cfg.DetectBase.InputSize),
		Threshold: cfg.DetectBase.Threshold,
		DeviceID:  cfg.DeviceID,
	}
}

func (cfg Config) VerbConfig(paths ResolvedPaths) VerbConfig {
	return VerbConfig{
		Script:     cfg.resolve(cfg.VerbBase.Script),
		Checkpoint: paths.VerbCheckpoint,
		InputSize:  [2]int(cfg.VerbBase.InputSize),
		Mean:       cfg.VerbBase.Mean,
		Std:        cfg.VerbBase.Std,
		DeviceID:   cfg.DeviceID,
	}
}

func (cfg Config) EvalOptions(paths ResolvedPaths) EvalOptions {
	return EvalOptions{
		DatasetRoot:         paths.DatasetRoot,
		FramesRoot:          paths.FramesRoot,
		FrameExts:           cfg.EvaluateBase.FrameExts,
		InstrumentThreshold: cfg.DetectBase.Threshold,
		VerbThreshold:       cfg.VerbBase.Threshold,
		InstrumentClasses:   cfg.DetectBase.Classes,
		VerbClasses:         cfg.VerbBase.Classes,
		AbortOnError:        cfg.EvaluateBase.AbortOnError,
	}
}

func (cfg Config) FeatureConfig(paths ResolvedPaths) FeatureConfig {
	return FeatureConfig{
		Script:   cfg.resolve(cfg.FeatureBase.Script),
		Weights:  paths.DetectorWeights,
		Layer:    cfg.FeatureBase.Layer,
		DeviceID: cfg.DeviceID,
	}
}

// DetectorConfig describes one detector process.
type DetectorConfig struct {
	Script    string
	Weights   string
	InputSize [2]int
	Threshold float64
	DeviceID  int
}

func (cfg DetectorConfig) Dir() string {
	return fmt.Sprintf("%s-%dx%d", strings.TrimSuffix(filepath.Base(cfg.Weights), filepath.Ext(cfg.Weights)), cfg.InputSize[0], cfg.InputSize[1])
}

// VerbConfig describes one verb classifier process.
type VerbConfig struct {
	Script     string
	Checkpoint string
	InputSize  [2]int
	Mean       [3]float64
	Std        [3]float64
	DeviceID   int
}

// FeatureConfig describes the backbone feature extractor process. It shares
// the detector weights.
type FeatureConfig struct {
	Script   string
	Weights  string
	Layer    int
	DeviceID int
}
