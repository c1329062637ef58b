package lib

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

type EvalOptions struct {
	DatasetRoot         string
	FramesRoot          string
	FrameExts           []string
	InstrumentThreshold float64
	VerbThreshold       float64
	InstrumentClasses   []string
	VerbClasses         []string
	AbortOnError        bool
}

// FrameRecord is the comparison of one annotated frame against the models.
// Instruments and Verbs hold the best score per predicted name.
type FrameRecord struct {
	Video       string             `json:"video"`
	Frame       int                `json:"frame"`
	File        string             `json:"file"`
	Truth       FrameAnnotation    `json:"truth"`
	Instruments map[string]float64 `json:"instruments"`
	Verbs       map[string]float64 `json:"verbs"`
	Detections  []Detection        `json:"detections"`
}

func (r FrameRecord) truth(kind LabelKind) StringSet {
	if kind == VerbLabels {
		return r.Truth.Verbs
	}
	return r.Truth.Instruments
}

func (r FrameRecord) predicted(kind LabelKind) map[string]float64 {
	if kind == VerbLabels {
		return r.Verbs
	}
	return r.Instruments
}

type VideoResult struct {
	Video         string        `json:"video"`
	Records       []FrameRecord `json:"records"`
	Unannotated   int           `json:"unannotated"`
	Instruments   []ClassScore  `json:"instrument_scores"`
	Verbs         []ClassScore  `json:"verb_scores"`
	InstrumentMAP float64       `json:"instrument_map"`
	VerbMAP       float64       `json:"verb_map"`
}

type RunResult struct {
	Videos        []*VideoResult    `json:"videos"`
	Failed        map[string]string `json:"failed"`
	Instruments   []ClassScore      `json:"instrument_scores"`
	Verbs         []ClassScore      `json:"verb_scores"`
	InstrumentMAP float64           `json:"instrument_map"`
	VerbMAP       float64           `json:"verb_map"`
}

// Records returns the frame records of every evaluated video.
func (r *RunResult) Records() []FrameRecord {
	var records []FrameRecord
	for _, v := range r.Videos {
		records = append(records, v.Records...)
	}
	return records
}

type Evaluator struct {
	Detector Detector
	Verbs    VerbClassifier
	Options  EvalOptions
	Logger   *slog.Logger
	// Progress receives the per-video progress bars; nil disables them.
	Progress io.Writer
}

func NewEvaluator(detector Detector, verbs VerbClassifier, opts EvalOptions, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		Detector: detector,
		Verbs:    verbs,
		Options:  opts,
		Logger:   logger,
	}
}

// EvaluateVideo runs both models over the annotated frames of one video.
// Frames missing from gt are skipped and counted. The first image or model
// error aborts the video.
func (e *Evaluator) EvaluateVideo(video string, frames []FrameFile, gt AnnotationIndex) (*VideoResult, error) {
	result := &VideoResult{Video: video}
	bar := newProgressBar(len(frames), fmt.Sprintf("[cyan][%s][reset] Evaluate frames", video), e.Progress)
	for _, frame := range frames {
		bar.Add(1)
		truth, ok := gt.Lookup(frame.Number)
		if !ok {
			result.Unannotated++
			continue
		}
		record, err := e.evaluateFrame(video, frame, truth)
		if err != nil {
			return nil, fmt.Errorf("frame %d (%s): %w", frame.Number, frame.Path, err)
		}
		result.Records = append(result.Records, record)
	}
	bar.Finish()

	if result.Unannotated > 0 {
		e.Logger.Warn("frames without annotation skipped", "video", video, "count", result.Unannotated)
	}
	result.Instruments, result.InstrumentMAP = e.score(result.Records, InstrumentLabels)
	result.Verbs, result.VerbMAP = e.score(result.Records, VerbLabels)
	e.Logger.Info("video evaluated", "video", video, "frames", len(result.Records),
		"instrument_map", result.InstrumentMAP, "verb_map", result.VerbMAP)
	return result, nil
}

func (e *Evaluator) evaluateFrame(video string, frame FrameFile, truth FrameAnnotation) (FrameRecord, error) {
	record := FrameRecord{
		Video:       video,
		Frame:       frame.Number,
		File:        filepath.Base(frame.Path),
		Truth:       truth,
		Instruments: make(map[string]float64),
		Verbs:       make(map[string]float64),
	}
	im, err := ImageFromFile(frame.Path)
	if err != nil {
		return record, err
	}
	detections, err := e.Detector.Detect(im)
	if err != nil {
		return record, err
	}
	record.Detections = FilterDetections(detections, e.Options.InstrumentThreshold)
	for _, d := range record.Detections {
		keepMax(record.Instruments, d.Class, d.Score)
		rect, ok := ClipToImage(d, im.Width, im.Height)
		if !ok {
			e.Logger.Debug("detection outside frame", "frame", frame.Number, "class", d.Class)
			continue
		}
		crop := im.Crop(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y)
		verbs, err := e.Verbs.Classify(crop)
		if err != nil {
			return record, err
		}
		for _, v := range verbs {
			keepMax(record.Verbs, v.Verb, v.Score)
		}
	}
	return record, nil
}

func keepMax(scores map[string]float64, name string, score float64) {
	if prev, ok := scores[name]; !ok || score > prev {
		scores[name] = score
	}
}

func (e *Evaluator) score(records []FrameRecord, kind LabelKind) ([]ClassScore, float64) {
	classes, threshold := e.Options.InstrumentClasses, e.Options.InstrumentThreshold
	if kind == VerbLabels {
		classes, threshold = e.Options.VerbClasses, e.Options.VerbThreshold
	}
	scores := ScoreClasses(records, kind, classes, threshold)
	mAP, _ := MeanAP(scores)
	return scores, mAP
}

// Run evaluates each video with a freshly loaded annotation index. A failed
// video is recorded in Failed and the run moves on, unless AbortOnError is
// set. Aggregate scores cover the successful videos.
func (e *Evaluator) Run(videos []string) (*RunResult, error) {
	run := &RunResult{Failed: make(map[string]string)}
	for _, video := range videos {
		result, err := e.runVideo(video)
		if err != nil {
			e.Logger.Error("video failed", "video", video, "err", err)
			run.Failed[video] = err.Error()
			if e.Options.AbortOnError {
				return run, fmt.Errorf("video %s: %w", video, err)
			}
			continue
		}
		run.Videos = append(run.Videos, result)
	}
	records := run.Records()
	run.Instruments, run.InstrumentMAP = e.score(records, InstrumentLabels)
	run.Verbs, run.VerbMAP = e.score(records, VerbLabels)
	return run, nil
}

func (e *Evaluator) runVideo(video string) (*VideoResult, error) {
	gt, err := LoadGroundTruth(e.Logger, e.Options.DatasetRoot, video)
	if err != nil {
		return nil, err
	}
	frames, err := ListFrames(filepath.Join(e.Options.FramesRoot, video), e.Options.FrameExts)
	if err != nil {
		return nil, err
	}
	return e.EvaluateVideo(video, frames, gt)
}
