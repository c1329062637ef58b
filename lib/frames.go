package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type FrameFile struct {
	Number int
	Path   string
}

// ListFrames lists the frame images of one video directory in lexical order.
// Frame numbers come from the last digit run in each file name; if any file
// has no digits the position in the listing is used for every file instead.
// Two files with the same frame number are an error. Extensions match
// case-insensitively.
func ListFrames(dir string, exts []string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing frames of %s: %w", dir, err)
	}
	wanted := make([]string, len(exts))
	for i, ext := range exts {
		wanted[i] = strings.ToLower(ext)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if len(exts) > 0 && !IsContain(wanted, ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	frames := make([]FrameFile, len(names))
	numbered := true
	for i, name := range names {
		n, ok := lastNumber(strings.TrimSuffix(name, filepath.Ext(name)))
		if !ok {
			numbered = false
		}
		frames[i] = FrameFile{Number: n, Path: filepath.Join(dir, name)}
	}
	if !numbered {
		for i := range frames {
			frames[i].Number = i
		}
		return frames, nil
	}
	seen := make(map[int]string, len(frames))
	for _, f := range frames {
		if prev, ok := seen[f.Number]; ok {
			return nil, fmt.Errorf("%w: %s and %s both name frame %d", ErrDuplicateFrame, filepath.Base(prev), filepath.Base(f.Path), f.Number)
		}
		seen[f.Number] = f.Path
	}
	return frames, nil
}
