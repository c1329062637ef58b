package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const testConfig = `
deviceid: 1
paths:
  projectroot: %s
  datasetroot: HeiChole
  detectorweights: weights/best_v35.pt
  verbcheckpoint: checkpoints/last.ckpt
detectbase:
  threshold: 0.4
  classes: [grasper, hook]
verbbase:
  inputsize: [112, 112]
evaluatebase:
  videos: [VID01, VID02]
`

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`deviceid: 0`))
	require.NoError(t, err)
	assert.Equal(t, Dims{640, 640}, cfg.DetectBase.InputSize)
	assert.Equal(t, Dims{224, 224}, cfg.VerbBase.InputSize)
	assert.Equal(t, "./pylib/detectors/yolov8.py", cfg.DetectBase.Script)
	assert.Equal(t, 10, cfg.FeatureBase.Layer)
	assert.Equal(t, []string{".png", ".jpg"}, cfg.EvaluateBase.FrameExts)
}

func TestParseConfigUnknownModel(t *testing.T) {
	_, err := ParseConfig([]byte("detectbase:\n  modeltype: DETR\n"))
	assert.Error(t, err)
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "weights", "best_v35.pt"))
	touch(t, filepath.Join(root, "checkpoints", "last.ckpt"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "HeiChole"), 0755))

	cfg, err := ParseConfig([]byte(fmt.Sprintf(testConfig, root)))
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.DetectBase.Threshold)
	assert.Equal(t, Dims{112, 112}, cfg.VerbBase.InputSize)
	assert.Equal(t, []string{"VID01", "VID02"}, cfg.EvaluateBase.Videos)

	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "HeiChole"), paths.DatasetRoot)
	assert.Equal(t, filepath.Join(root, "HeiChole", "Videos"), paths.FramesRoot)
	assert.Equal(t, filepath.Join(root, "weights", "best_v35.pt"), paths.DetectorWeights)
	assert.Equal(t, "./result", paths.OutputDir)

	det := cfg.DetectorConfig(paths)
	assert.Equal(t, "best_v35-640x640", det.Dir())
	assert.Equal(t, 1, det.DeviceID)
}

func TestResolvePathsMissing(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "weights", "best_v35.pt"))

	cfg, err := ParseConfig([]byte(fmt.Sprintf(testConfig, root)))
	require.NoError(t, err)
	_, err = cfg.ResolvePaths()
	assert.ErrorIs(t, err, ErrPathNotFound)
	assert.Contains(t, err.Error(), "verb model checkpoint")
}

func TestEnvOverridesPaths(t *testing.T) {
	other := t.TempDir()
	t.Setenv("SURGEVAL_DATASET_ROOT", other)
	t.Setenv("SURGEVAL_FRAMES_ROOT", filepath.Join(other, "frames"))

	cfg, err := ParseConfig([]byte(fmt.Sprintf(testConfig, "/nonexistent")))
	require.NoError(t, err)
	assert.Equal(t, other, cfg.Paths.DatasetRoot)
	assert.Equal(t, filepath.Join(other, "frames"), cfg.resolve(cfg.Paths.FramesRoot))
}

func TestParseDims(t *testing.T) {
	dims, err := ParseDims("640x352")
	require.NoError(t, err)
	assert.Equal(t, [2]int{640, 352}, dims)

	_, err = ParseDims("640")
	assert.Error(t, err)
	_, err = ParseDims("ax3")
	assert.Error(t, err)
}

func TestConfigInputSizeForms(t *testing.T) {
	cfg, err := ParseConfig([]byte("detectbase:\n  inputsize: 1280x736\nverbbase:\n  inputsize: [112, 96]\n"))
	require.NoError(t, err)
	assert.Equal(t, Dims{1280, 736}, cfg.DetectBase.InputSize)
	assert.Equal(t, Dims{112, 96}, cfg.VerbBase.InputSize)
	assert.Equal(t, [2]int{1280, 736}, cfg.DetectorConfig(ResolvedPaths{}).InputSize)

	_, err = ParseConfig([]byte("detectbase:\n  inputsize: 1280\n"))
	assert.Error(t, err)

	out, err := yaml.Marshal(cfg.DetectBase)
	require.NoError(t, err)
	assert.Contains(t, string(out), "inputsize: 1280x736")
}

func TestResolveDetectorPathsSkipsCheckpoint(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "weights", "best_v35.pt"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "HeiChole"), 0755))

	cfg, err := ParseConfig([]byte(fmt.Sprintf(testConfig, root)))
	require.NoError(t, err)
	_, err = cfg.ResolvePaths()
	assert.ErrorIs(t, err, ErrPathNotFound)

	paths, err := cfg.ResolveDetectorPaths()
	require.NoError(t, err)
	feat := cfg.FeatureConfig(paths)
	assert.Equal(t, paths.DetectorWeights, feat.Weights)
	assert.Equal(t, 10, feat.Layer)
}
