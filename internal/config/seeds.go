package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seeds is the document listing the URLs a sync pass visits: {"urls": [...]}.
type Seeds struct {
	URLs []string `yaml:"urls" json:"urls"`
}

// LoadSeeds reads a seed document. JSON and YAML forms are both accepted.
// Blank entries are dropped and duplicates keep their first position.
func LoadSeeds(path string) (*Seeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds file: %w", err)
	}
	return ParseSeeds(data)
}

func ParseSeeds(data []byte) (*Seeds, error) {
	var seeds Seeds
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}

	seen := make(map[string]bool, len(seeds.URLs))
	urls := make([]string, 0, len(seeds.URLs))
	for _, u := range seeds.URLs {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	seeds.URLs = urls

	return &seeds, nil
}
