package bot

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultFiles embed.FS

// Difficulty selects a bot profile.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty maps free text to a difficulty; unknown values become Medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case Easy:
		return Easy
	case Hard:
		return Hard
	default:
		return Medium
	}
}

// Profile tunes move quality and pacing for one difficulty.
type Profile struct {
	DelayMinMs      int       `yaml:"delay_min_ms"`
	DelayMaxMs      int       `yaml:"delay_max_ms"`
	RandomRate      float64   `yaml:"random_rate"`
	Depth           int       `yaml:"depth"`
	OpponentReplies int       `yaml:"opponent_replies"`
	Weights         []float64 `yaml:"weights"`
}

func ValidateProfile(p Profile) error {
	if p.DelayMinMs < 0 || p.DelayMaxMs < p.DelayMinMs {
		return fmt.Errorf("invalid delay window %d..%d", p.DelayMinMs, p.DelayMaxMs)
	}
	if p.RandomRate < 0 || p.RandomRate > 1 {
		return fmt.Errorf("random_rate out of range: %v", p.RandomRate)
	}
	if p.Depth < 1 || p.Depth > 2 {
		return fmt.Errorf("depth must be 1 or 2, got %d", p.Depth)
	}
	if len(p.Weights) == 0 {
		return errors.New("weights must not be empty")
	}
	total := 0.0
	for _, w := range p.Weights {
		if w < 0 {
			return errors.New("weights must be non-negative")
		}
		total += w
	}
	if total == 0 {
		return errors.New("weights sum to zero")
	}
	return nil
}

// LoadProfiles reads the embedded defaults, then per-difficulty overrides from dir if set.
func LoadProfiles(overrideDir string) (map[Difficulty]Profile, error) {
	out := make(map[Difficulty]Profile)
	raw, err := fs.ReadFile(defaultFiles, "profiles.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded profiles: %w", err)
	}
	if err := applyYAML(out, raw); err != nil {
		return nil, fmt.Errorf("parse embedded profiles: %w", err)
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := applyDir(out, overrideDir); err != nil {
			return nil, err
		}
	}
	for d, p := range out {
		if err := ValidateProfile(p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", d, err)
		}
	}
	for _, d := range []Difficulty{Easy, Medium, Hard} {
		if _, ok := out[d]; !ok {
			return nil, fmt.Errorf("profile %s missing", d)
		}
	}
	return out, nil
}

func applyDir(dst map[Difficulty]Profile, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read profile dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	seen := make(map[Difficulty]string)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var m map[string]Profile
		if err := yaml.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range m {
			d := Difficulty(strings.ToLower(strings.TrimSpace(k)))
			if prev, ok := seen[d]; ok {
				return fmt.Errorf("duplicate override for %q in %s and %s", d, prev, name)
			}
			seen[d] = name
		}
		if err := applyYAML(dst, b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func applyYAML(dst map[Difficulty]Profile, b []byte) error {
	var m map[string]Profile
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, p := range m {
		d := Difficulty(strings.ToLower(strings.TrimSpace(k)))
		switch d {
		case Easy, Medium, Hard:
			dst[d] = p
		default:
			return fmt.Errorf("unknown difficulty %q", k)
		}
	}
	return nil
}
