package lib

import (
	"fmt"
	"sort"
	"strconv"
)

type VerbScore struct {
	Verb  string  `json:"verb"`
	Score float64 `json:"score"`
}

// VerbClassifier predicts the action performed with the instrument in a crop.
// Scores come back in descending order.
type VerbClassifier interface {
	Classify(crop Image) ([]VerbScore, error)
	Close() error
}

// PythonVerbClassifier runs the verb recognition checkpoint. Crops are resized
// and normalized here; the script receives a CHW float32 tensor.
type PythonVerbClassifier struct {
	proc *modelProcess
	cfg  VerbConfig
}

func NewPythonVerbClassifier(cfg VerbConfig) (*PythonVerbClassifier, error) {
	proc, err := startModelProcess(
		cfg.DeviceID, cfg.Script,
		cfg.Checkpoint,
		strconv.Itoa(cfg.InputSize[0]), strconv.Itoa(cfg.InputSize[1]),
	)
	if err != nil {
		return nil, err
	}
	return &PythonVerbClassifier{
		proc: proc,
		cfg:  cfg,
	}, nil
}

func (m *PythonVerbClassifier) Classify(crop Image) ([]VerbScore, error) {
	w, h := m.cfg.InputSize[0], m.cfg.InputSize[1]
	tensor := crop.Resize(w, h).Normalize(m.cfg.Mean, m.cfg.Std)
	var scores []VerbScore
	if err := m.proc.callTensor(w, h, tensor, &scores); err != nil {
		return nil, fmt.Errorf("verb classifier: %w", err)
	}
	sortVerbScores(scores)
	return scores, nil
}

func (m *PythonVerbClassifier) Close() error {
	return m.proc.Close()
}

func sortVerbScores(scores []VerbScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
}
