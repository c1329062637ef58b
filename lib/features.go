package lib

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FeatureExtractor returns the flattened backbone activation for a frame.
type FeatureExtractor interface {
	Extract(im Image) ([]float32, error)
	Close() error
}

type PythonFeatureExtractor struct {
	proc *modelProcess
}

func NewPythonFeatureExtractor(cfg FeatureConfig) (*PythonFeatureExtractor, error) {
	proc, err := startModelProcess(cfg.DeviceID, cfg.Script, cfg.Weights, strconv.Itoa(cfg.Layer))
	if err != nil {
		return nil, err
	}
	return &PythonFeatureExtractor{proc: proc}, nil
}

// Extract sends the frame at full resolution.
func (m *PythonFeatureExtractor) Extract(im Image) ([]float32, error) {
	var features []float32
	if err := m.proc.callImage(im, &features); err != nil {
		return nil, fmt.Errorf("feature extractor: %w", err)
	}
	return features, nil
}

func (m *PythonFeatureExtractor) Close() error {
	return m.proc.Close()
}

// FeatureSet holds one row per detected instrument. A frame with several
// detections contributes its feature vector once per detection.
type FeatureSet struct {
	Video        string      `json:"video"`
	Layer        int         `json:"layer"`
	Features     [][]float32 `json:"features"`
	Labels       []string    `json:"labels"`
	FrameIndices []int       `json:"frame_indices"`
}

func (s *FeatureSet) Len() int {
	return len(s.Features)
}

func (s *FeatureSet) Dim() int {
	if len(s.Features) == 0 {
		return 0
	}
	return len(s.Features[0])
}

// CollectFeatures runs the detector over every frame and, for frames with at
// least one detection, extracts the frame features. Labels are the lowercased
// detected classes; frame indices are positions in frames.
func CollectFeatures(video string, layer int, frames []FrameFile, detector Detector, extractor FeatureExtractor, logger *slog.Logger, progress io.Writer) (*FeatureSet, error) {
	set := &FeatureSet{Video: video, Layer: layer}
	bar := newProgressBar(len(frames), fmt.Sprintf("[cyan][%s][reset] Extract features", video), progress)
	for i, frame := range frames {
		bar.Add(1)
		im, err := ImageFromFile(frame.Path)
		if err != nil {
			return nil, err
		}
		detections, err := detector.Detect(im)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", frame.Path, err)
		}
		if len(detections) == 0 {
			continue
		}
		features, err := extractor.Extract(im)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", frame.Path, err)
		}
		if len(features) == 0 {
			return nil, fmt.Errorf("%w: frame %s has no features", ErrInference, frame.Path)
		}
		if set.Len() > 0 && len(features) != set.Dim() {
			return nil, fmt.Errorf("%w: frame %s has %d features, expected %d", ErrInference, frame.Path, len(features), set.Dim())
		}
		for _, d := range detections {
			set.Features = append(set.Features, features)
			set.Labels = append(set.Labels, strings.ToLower(d.Class))
			set.FrameIndices = append(set.FrameIndices, i)
		}
	}
	bar.Finish()

	if set.Len() == 0 {
		logger.Warn("no features extracted, no instrument was detected", "video", video)
		return set, nil
	}
	logger.Info("features extracted", "video", video, "rows", set.Len(), "dim", set.Dim(), "labels", len(LabelCounts(set)))
	return set, nil
}

type LabelCount struct {
	Label string
	Count int
}

// LabelCounts returns the number of rows per label, sorted by label.
func LabelCounts(set *FeatureSet) []LabelCount {
	counts := make(map[string]int)
	for _, label := range set.Labels {
		counts[label]++
	}
	result := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		result = append(result, LabelCount{label, n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Label < result[j].Label
	})
	return result
}

// Project2D projects the centered features onto their first two principal
// components.
func Project2D(set *FeatureSet) ([][2]float64, error) {
	n, d := set.Len(), set.Dim()
	if n == 0 {
		return nil, ErrNoFeatures
	}
	if d == 0 {
		return nil, fmt.Errorf("%w: empty feature vectors", ErrNoFeatures)
	}
	for i, row := range set.Features {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInference, i, len(row), d)
		}
	}
	points := make([][2]float64, n)
	if n == 1 {
		return points, nil
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range set.Features {
		for j, v := range row {
			data.Set(i, j, float64(v))
		}
	}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, data)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			data.Set(i, j, col[i]-mean)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("principal component analysis of %dx%d features failed", n, d)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, k := vecs.Dims()
	if k > 2 {
		k = 2
	}
	var proj mat.Dense
	proj.Mul(data, vecs.Slice(0, d, 0, k))
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			points[i][c] = proj.At(i, c)
		}
	}
	return points, nil
}
