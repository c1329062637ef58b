package lib

import (
	"fmt"
	"image"
	"sort"
	"strconv"

	"github.com/mitroadmaps/gomapinfer/common"
)

type Detection struct {
	Left   int     `json:"left"`
	Top    int     `json:"top"`
	Right  int     `json:"right"`
	Bottom int     `json:"bottom"`
	Class  string  `json:"class"`
	Score  float64 `json:"score"`
}

func (d Detection) Rectangle() common.Rectangle {
	return common.Rectangle{
		Min: common.Point{X: float64(d.Left), Y: float64(d.Top)},
		Max: common.Point{X: float64(d.Right), Y: float64(d.Bottom)},
	}
}

// Detector locates instruments in a frame. Detections come back in descending
// score order, in the coordinates of the image that was passed in.
type Detector interface {
	Detect(im Image) ([]Detection, error)
	Close() error
}

func RescaleDetections(detections []Detection, origDims [2]int, newDims [2]int) {
	for i := range detections {
		detections[i].Left = detections[i].Left * newDims[0] / origDims[0]
		detections[i].Right = detections[i].Right * newDims[0] / origDims[0]
		detections[i].Top = detections[i].Top * newDims[1] / origDims[1]
		detections[i].Bottom = detections[i].Bottom * newDims[1] / origDims[1]
	}
}

// FilterDetections keeps detections scoring at least threshold.
func FilterDetections(detections []Detection, threshold float64) []Detection {
	var kept []Detection
	for _, d := range detections {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	return kept
}

func sortDetections(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})
}

// ClipToImage returns the part of the box inside a width x height image.
func ClipToImage(d Detection, width int, height int) (image.Rectangle, bool) {
	clipped := d.Rectangle().Intersection(common.Rect(0, 0, float64(width), float64(height)))
	if clipped.Area() <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(int(clipped.Min.X), int(clipped.Min.Y), int(clipped.Max.X), int(clipped.Max.Y)), true
}

// PythonDetector runs a YOLO-style detector script.
type PythonDetector struct {
	proc      *modelProcess
	inputSize [2]int
}

func NewPythonDetector(cfg DetectorConfig) (*PythonDetector, error) {
	proc, err := startModelProcess(
		cfg.DeviceID, cfg.Script,
		cfg.Weights,
		strconv.Itoa(cfg.InputSize[0]), strconv.Itoa(cfg.InputSize[1]),
		strconv.FormatFloat(cfg.Threshold, 'f', 4, 64),
	)
	if err != nil {
		return nil, err
	}
	return &PythonDetector{
		proc:      proc,
		inputSize: cfg.InputSize,
	}, nil
}

// Detect resizes the frame to the detector input and maps boxes back to frame coordinates.
func (yolo *PythonDetector) Detect(im Image) ([]Detection, error) {
	input := im.Resize(yolo.inputSize[0], yolo.inputSize[1])
	var detections []Detection
	if err := yolo.proc.callImage(input, &detections); err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	RescaleDetections(detections, yolo.inputSize, [2]int{im.Width, im.Height})
	sortDetections(detections)
	return detections, nil
}

func (yolo *PythonDetector) Close() error {
	return yolo.proc.Close()
}
