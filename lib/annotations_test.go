package lib

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeLabels(t *testing.T, root string, video string, body string) {
	t.Helper()
	dir := filepath.Join(root, "Labels")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, video+".json"), []byte(body), 0644))
}

func mustBuild(t *testing.T, body string) AnnotationIndex {
	t.Helper()
	doc, err := ParseAnnotationDocument([]byte(body))
	require.NoError(t, err)
	index, err := BuildIndex(doc)
	require.NoError(t, err)
	return index
}

func TestBuildIndexExample(t *testing.T) {
	index := mustBuild(t, `{"frames": {"0": {"instruments": {"grasper": 1, "hook": 0}, "actions": {"cut": 1}}}}`)
	require.Len(t, index, 1)
	ann, ok := index.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, NewStringSet("grasper"), ann.Instruments)
	assert.Equal(t, NewStringSet("cut"), ann.Verbs)
}

func TestBuildIndexPresenceThreshold(t *testing.T) {
	index := mustBuild(t, `{"frames": {"3": {
		"instruments": {"a": 0, "b": -1, "c": 0.0, "d": 1, "e": 5, "f": 0.5},
		"actions": {"zero": 0, "neg": -2, "half": 0.5}
	}}}`)
	ann, ok := index.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, []string{"d", "e", "f"}, ann.Instruments.Sorted())
	assert.Equal(t, []string{"half"}, ann.Verbs.Sorted())
}

func TestBuildIndexFrameKeys(t *testing.T) {
	index := mustBuild(t, `{"frames": {
		"0": {"instruments": {"grasper": 1}},
		"7": {"instruments": {}},
		"1200": {"actions": {"retract": 2}}
	}}`)
	assert.Equal(t, []int{0, 7, 1200}, index.Frames())

	_, ok := index.Lookup(1)
	assert.False(t, ok, "frames missing from the document must not be synthesized")
	_, ok = index.Lookup(8)
	assert.False(t, ok)
}

func TestBuildIndexEmptySubMaps(t *testing.T) {
	index := mustBuild(t, `{"frames": {"5": {"instruments": {}}, "6": {}, "9": null}}`)
	for _, frame := range []int{5, 6, 9} {
		ann, ok := index.Lookup(frame)
		require.True(t, ok, "frame %d", frame)
		assert.NotNil(t, ann.Instruments)
		assert.NotNil(t, ann.Verbs)
		assert.Empty(t, ann.Instruments)
		assert.Empty(t, ann.Verbs)
	}
}

func TestBuildIndexMalformedKey(t *testing.T) {
	for _, body := range []string{
		`{"frames": {"0": {}, "abc": {"instruments": {"grasper": 1}}}}`,
		`{"frames": {"1.5": {}}}`,
		`{"frames": {"-3": {}}}`,
		`{"frames": {" 4": {}}}`,
		`{"frames": {"1": {}, "01": {}}}`,
	} {
		doc, err := ParseAnnotationDocument([]byte(body))
		require.NoError(t, err, body)
		index, err := BuildIndex(doc)
		assert.ErrorIs(t, err, ErrMalformedFrameKey, body)
		assert.Nil(t, index, body)
	}
}

func TestBuildIndexIdempotent(t *testing.T) {
	body := `{"frames": {"0": {"instruments": {"grasper": 1, "hook": 1}}, "1": {"actions": {"grasp": 1, "cut": 0}}}}`
	doc, err := ParseAnnotationDocument([]byte(body))
	require.NoError(t, err)
	first, err := BuildIndex(doc)
	require.NoError(t, err)
	second, err := BuildIndex(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseAnnotationDocumentErrors(t *testing.T) {
	for _, body := range []string{
		`{"frames": {`,
		`[]`,
		`{"videos": {}}`,
		`{"frames": null}`,
		`{"frames": {"0": {"instruments": {"grasper": "yes"}}}}`,
	} {
		_, err := ParseAnnotationDocument([]byte(body))
		assert.ErrorIs(t, err, ErrParse, body)
	}
}

func TestReadAnnotationDocumentMissing(t *testing.T) {
	_, err := ReadAnnotationDocument(t.TempDir(), "VID01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnnotationNotFound)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadGroundTruth(t *testing.T) {
	root := t.TempDir()
	writeLabels(t, root, "VID01", `{"frames": {
		"0": {"instruments": {"grasper": 1}, "actions": {"grasp": 1}},
		"1": {"instruments": {"grasper": 1, "hook": 1}, "actions": {}},
		"2": {"instruments": {}, "actions": {}}
	}}`)

	index, err := LoadGroundTruth(discardLogger(), root, "VID01")
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Frames: 3, WithInstruments: 2, WithActions: 1}, index.Stats())
	assert.Equal(t, []string{"grasper", "hook"}, index.Instruments())
	assert.Equal(t, []string{"grasp"}, index.Verbs())
}

func TestLoadGroundTruthIsolation(t *testing.T) {
	root := t.TempDir()
	writeLabels(t, root, "VID_A", `{"frames": {"0": {"instruments": {"hook": 1}}, "abc": {}}}`)
	writeLabels(t, root, "VID_B", `{"frames": {"4": {"instruments": {"grasper": 1}}}}`)

	a, err := LoadGroundTruth(discardLogger(), root, "VID_A")
	require.ErrorIs(t, err, ErrMalformedFrameKey)
	require.Nil(t, a)

	b, err := LoadGroundTruth(discardLogger(), root, "VID_B")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, b.Frames())
	assert.Equal(t, []string{"grasper"}, b.Instruments())
}

func TestStringSetJSON(t *testing.T) {
	ann := FrameAnnotation{Instruments: NewStringSet("hook", "grasper"), Verbs: NewStringSet()}
	bytes, err := json.Marshal(ann)
	require.NoError(t, err)
	assert.JSONEq(t, `{"instruments": ["grasper", "hook"], "verbs": []}`, string(bytes))

	var back FrameAnnotation
	require.NoError(t, JsonUnmarshal(bytes, &back))
	assert.Equal(t, ann, back)
}
