package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// AnnotationDocument is the raw per-video label file.
type AnnotationDocument struct {
	Frames map[string]*RawFrame `json:"frames"`
}

// RawFrame holds the presence values of one frame exactly as they appear on disk.
type RawFrame struct {
	Instruments map[string]float64 `json:"instruments"`
	Actions     map[string]float64 `json:"actions"`
}

type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

func (s StringSet) Sorted() []string {
	items := make([]string, 0, len(s))
	for item := range s {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewStringSet(items...)
	return nil
}

// FrameAnnotation is the binarized ground truth of one frame.
type FrameAnnotation struct {
	Instruments StringSet `json:"instruments"`
	Verbs       StringSet `json:"verbs"`
}

// AnnotationIndex maps frame number to ground truth. It is read-only once built.
type AnnotationIndex map[int]FrameAnnotation

type IndexStats struct {
	Frames          int
	WithInstruments int
	WithActions     int
}

func LabelPath(datasetRoot string, video string) string {
	return filepath.Join(datasetRoot, "Labels", video+".json")
}

func ParseAnnotationDocument(data []byte) (*AnnotationDocument, error) {
	var doc AnnotationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc.Frames == nil {
		return nil, fmt.Errorf("%w: missing top-level frames object", ErrParse)
	}
	return &doc, nil
}

// ReadAnnotationDocument reads {datasetRoot}/Labels/{video}.json.
func ReadAnnotationDocument(datasetRoot string, video string) (*AnnotationDocument, error) {
	fname := LabelPath(datasetRoot, video)
	bytes, err := os.ReadFile(fname)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrAnnotationNotFound, fname, err)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrParse, fname, err)
	}
	doc, err := ParseAnnotationDocument(bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return doc, nil
}

func parseFrameKey(key string) (int, error) {
	frame, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedFrameKey, key)
	}
	if frame < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrMalformedFrameKey, key)
	}
	return frame, nil
}

func presentNames(values map[string]float64) StringSet {
	names := make(StringSet)
	for name, value := range values {
		if value > 0 {
			names[name] = struct{}{}
		}
	}
	return names
}

// BuildIndex binarizes every frame of doc at a zero threshold.
// The first malformed key aborts the build and no index is returned.
func BuildIndex(doc *AnnotationDocument) (AnnotationIndex, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrParse)
	}
	index := make(AnnotationIndex, len(doc.Frames))
	keys := make(map[int]string, len(doc.Frames))
	for key, raw := range doc.Frames {
		frame, err := parseFrameKey(key)
		if err != nil {
			return nil, err
		}
		if prev, ok := keys[frame]; ok {
			return nil, fmt.Errorf("%w: %q and %q both name frame %d", ErrMalformedFrameKey, prev, key, frame)
		}
		keys[frame] = key

		var rf RawFrame
		if raw != nil {
			rf = *raw
		}
		index[frame] = FrameAnnotation{
			Instruments: presentNames(rf.Instruments),
			Verbs:       presentNames(rf.Actions),
		}
	}
	return index, nil
}

func (idx AnnotationIndex) Lookup(frame int) (FrameAnnotation, bool) {
	ann, ok := idx[frame]
	return ann, ok
}

func (idx AnnotationIndex) Frames() []int {
	frames := make([]int, 0, len(idx))
	for frame := range idx {
		frames = append(frames, frame)
	}
	sort.Ints(frames)
	return frames
}

// Instruments returns every instrument name present in at least one frame.
func (idx AnnotationIndex) Instruments() []string {
	names := make(StringSet)
	for _, ann := range idx {
		for name := range ann.Instruments {
			names[name] = struct{}{}
		}
	}
	return names.Sorted()
}

// Verbs returns every verb name present in at least one frame.
func (idx AnnotationIndex) Verbs() []string {
	names := make(StringSet)
	for _, ann := range idx {
		for name := range ann.Verbs {
			names[name] = struct{}{}
		}
	}
	return names.Sorted()
}

func (idx AnnotationIndex) Stats() IndexStats {
	stats := IndexStats{Frames: len(idx)}
	for _, ann := range idx {
		if len(ann.Instruments) > 0 {
			stats.WithInstruments++
		}
		if len(ann.Verbs) > 0 {
			stats.WithActions++
		}
	}
	return stats
}

// LoadGroundTruth reads and indexes the labels of one video. Every call starts
// from scratch so a failure for one video leaves nothing behind for the next.
func LoadGroundTruth(logger *slog.Logger, datasetRoot string, video string) (AnnotationIndex, error) {
	logger.Debug("loading annotations", "video", video, "path", LabelPath(datasetRoot, video))
	doc, err := ReadAnnotationDocument(datasetRoot, video)
	if err != nil {
		return nil, err
	}
	index, err := BuildIndex(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LabelPath(datasetRoot, video), err)
	}
	stats := index.Stats()
	logger.Info("annotations loaded",
		"video", video,
		"frames", stats.Frames,
		"with_instruments", stats.WithInstruments,
		"with_actions", stats.WithActions,
	)
	return index, nil
}
