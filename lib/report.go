package lib

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
)

func newProgressBar(n int, desc string, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// scoreColor maps a [0, 1] metric onto the colorstring palette.
func scoreColor(v float64) string {
	switch {
	case v >= 0.7:
		return "green"
	case v >= 0.4:
		return "yellow"
	}
	return "red"
}

// PrintScores writes a per-class table of AP and confusion counts.
func PrintScores(w io.Writer, title string, scores []ClassScore, mAP float64) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "%-24s %8s %6s %6s %6s %6s %10s %8s %8s\n",
		"class", "AP", "pos", "TP", "FP", "FN", "precision", "recall", "F1")
	for _, s := range scores {
		ap := "     n/a"
		if s.HasAP {
			ap = fmt.Sprintf("[%s]%8.4f[reset]", scoreColor(s.AP), s.AP)
		}
		row := fmt.Sprintf("%-24s %s %6d [green]%6d[reset] [red]%6d %6d[reset] %10.4f %8.4f [%s]%8.4f[reset]\n",
			s.Name, ap, s.Positives, s.TP, s.FP, s.FN, s.Precision, s.Recall, scoreColor(s.F1), s.F1)
		fmt.Fprint(w, colorstring.Color(row))
	}
	fmt.Fprint(w, colorstring.Color(fmt.Sprintf("mAP: [%s]%.4f[reset]\n", scoreColor(mAP), mAP)))
}

// PrintRun writes the aggregate tables followed by the failed videos.
func PrintRun(w io.Writer, run *RunResult) {
	PrintScores(w, "Instruments", run.Instruments, run.InstrumentMAP)
	PrintScores(w, "Verbs", run.Verbs, run.VerbMAP)
	if len(run.Failed) == 0 {
		return
	}
	failed := make([]string, 0, len(run.Failed))
	for video := range run.Failed {
		failed = append(failed, video)
	}
	sort.Strings(failed)
	color.New(color.FgRed, color.Bold).Fprintf(w, "\nFailed videos\n")
	for _, video := range failed {
		fmt.Fprintf(w, colorstring.Color("[red]%s[reset]: %s\n"), video, run.Failed[video])
	}
}

func SaveResults(path string, run *RunResult) error {
	return WriteJsonFile(path, run)
}

func LoadResults(path string) (*RunResult, error) {
	var run RunResult
	if err := ReadJsonFile(path, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
