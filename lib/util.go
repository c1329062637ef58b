package lib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v2"
)

func IsContain(items []string, item string) bool {
	for _, eachItem := range items {
		if eachItem == item {
			return true
		}
	}
	return false
}

func JsonUnmarshal(bytes []byte, x interface{}) error {
	return json.Unmarshal(bytes, x)
}

func ReadJsonFile(fname string, x interface{}) error {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return err
	}
	if err := JsonUnmarshal(bytes, x); err != nil {
		return fmt.Errorf("%s: %w", fname, err)
	}
	return nil
}

// WriteJsonFile writes x as indented JSON, creating parent directories.
func WriteJsonFile(fname string, x interface{}) error {
	bytes, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fname), 0755); err != nil {
		return err
	}
	return os.WriteFile(fname, bytes, 0644)
}

func SaveYaml(config Config, savePath string) error {
	yamlData, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling YAML data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(savePath, yamlData, 0644)
}

var digitRun = regexp.MustCompile(`[0-9]+`)

// lastNumber returns the last run of digits in s.
func lastNumber(s string) (int, bool) {
	runs := digitRun.FindAllString(s, -1)
	if len(runs) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
