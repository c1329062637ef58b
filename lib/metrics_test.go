package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAveragePrecision(t *testing.T) {
	for _, tc := range []struct {
		name   string
		truth  []bool
		scores []float64
		want   float64
	}{
		// sklearn average_precision_score([0, 0, 1, 1], [0.1, 0.4, 0.35, 0.8])
		{"ranked", []bool{false, false, true, true}, []float64{0.1, 0.4, 0.35, 0.8}, 0.8333333333},
		{"perfect", []bool{true, false, true}, []float64{0.9, 0.1, 0.8}, 1},
		{"ties", []bool{true, false}, []float64{0.5, 0.5}, 0.5},
		{"unscored positive", []bool{true, true, false}, []float64{0.7, 0, 0}, 0.5 + 0.5*2.0/3.0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ap, ok := AveragePrecision(tc.truth, tc.scores)
			require.True(t, ok)
			assert.InDelta(t, tc.want, ap, 1e-6)
		})
	}
}

func TestAveragePrecisionNoPositives(t *testing.T) {
	_, ok := AveragePrecision([]bool{false, false}, []float64{0.3, 0.9})
	assert.False(t, ok)
}

func record(truthInstruments []string, truthVerbs []string, instruments map[string]float64, verbs map[string]float64) FrameRecord {
	return FrameRecord{
		Truth: FrameAnnotation{
			Instruments: NewStringSet(truthInstruments...),
			Verbs:       NewStringSet(truthVerbs...),
		},
		Instruments: instruments,
		Verbs:       verbs,
	}
}

func TestScoreClasses(t *testing.T) {
	records := []FrameRecord{
		record([]string{"grasper"}, []string{"grasp"}, map[string]float64{"grasper": 0.9}, map[string]float64{"grasp": 0.8, "cut": 0.1}),
		record([]string{"grasper", "hook"}, nil, map[string]float64{"hook": 0.6}, map[string]float64{"grasp": 0.3}),
		record(nil, []string{"cut"}, map[string]float64{"Grasper": 0.4}, map[string]float64{"cut": 0.6}),
	}

	scores := ScoreClasses(records, InstrumentLabels, nil, 0.25)
	require.Len(t, scores, 3)
	// exact names, no case folding
	assert.Equal(t, "Grasper", scores[0].Name)
	assert.False(t, scores[0].HasAP)
	assert.Equal(t, 1, scores[0].FP)

	grasper := scores[1]
	assert.Equal(t, "grasper", grasper.Name)
	assert.Equal(t, 2, grasper.Positives)
	assert.Equal(t, 1, grasper.TP)
	assert.Equal(t, 1, grasper.FN)
	assert.Equal(t, 1, grasper.TN)
	assert.InDelta(t, 1.0, grasper.Precision, 1e-9)
	assert.InDelta(t, 0.5, grasper.Recall, 1e-9)
	assert.True(t, grasper.HasAP)

	hook := scores[2]
	assert.Equal(t, 1, hook.TP)
	assert.InDelta(t, 1.0, hook.AP, 1e-9)

	verbs := ScoreClasses(records, VerbLabels, []string{"grasp", "cut", "retract"}, 0.5)
	require.Len(t, verbs, 3)
	assert.Equal(t, []string{"grasp", "cut", "retract"}, []string{verbs[0].Name, verbs[1].Name, verbs[2].Name})
	assert.Equal(t, 1, verbs[0].TP)
	assert.Equal(t, 0, verbs[0].FP)
	assert.Equal(t, 1, verbs[1].TP)
	assert.False(t, verbs[2].HasAP)

	mAP, ok := MeanAP(verbs)
	require.True(t, ok)
	assert.InDelta(t, 1.0, mAP, 1e-9)
}

func TestMeanAPUndefined(t *testing.T) {
	_, ok := MeanAP([]ClassScore{{Name: "hook"}})
	assert.False(t, ok)
}

func TestMicroF1(t *testing.T) {
	f1 := MicroF1([]ClassScore{{TP: 2, FP: 1, FN: 1}, {TP: 1, FP: 0, FN: 1}})
	// pooled: tp=3 fp=1 fn=2
	assert.InDelta(t, 2*0.75*0.6/(0.75+0.6), f1, 1e-9)
	assert.Zero(t, MicroF1(nil))
}

func TestSweepThresholds(t *testing.T) {
	records := []FrameRecord{
		record([]string{"grasper"}, nil, map[string]float64{"grasper": 0.9}, nil),
		record(nil, nil, map[string]float64{"grasper": 0.3}, nil),
		record([]string{"grasper"}, nil, map[string]float64{"grasper": 0.6}, nil),
	}
	sweep := SweepThresholds(records, InstrumentLabels, nil, []float64{0.8, 0.1, 0.5, 0.95}, 10)
	assert.Equal(t, []float64{0.1, 0.5, 0.8, 0.95}, sweep.Thresholds)
	assert.InDelta(t, 1.0, sweep.BestF1, 1e-9)
	assert.Equal(t, 0.5, sweep.BestThreshold)

	early := SweepThresholds(records, InstrumentLabels, nil, []float64{0.1, 0.5, 0.8, 0.95}, 0)
	assert.Equal(t, []float64{0.1, 0.5, 0.8}, early.Thresholds)
}
