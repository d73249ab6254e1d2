package coldstart

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// Profile is a demographic prior: likely categories plus reading habits.
type Profile struct {
	Categories    []string `yaml:"categories"`
	ReadingLevel  string   `yaml:"reading_level"`
	ContentLength string   `yaml:"content_length"`
	TimeOfDay     string   `yaml:"time_of_day"`
}

// Taxonomy maps what a user states at onboarding to category priors.
type Taxonomy struct {
	Categories  []string            `yaml:"categories"`
	Related     map[string][]string `yaml:"related"`
	AgeBrackets map[string]Profile  `yaml:"age_brackets"`
	Professions map[string][]string `yaml:"professions"`
	Locales     map[string][]string `yaml:"locales"`
	Default     Profile             `yaml:"default"`
}

// LoadTaxonomy reads a taxonomy from path, or the built-in one when path
// is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data := defaultTaxonomyYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading taxonomy %s: %w", path, err)
		}
		data = b
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes a YAML taxonomy and normalises its keys.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy lists no categories")
	}
	if len(t.Default.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no default categories")
	}

	t.Related = lowerKeys(t.Related)
	t.Professions = lowerKeys(t.Professions)
	t.Locales = lowerKeys(t.Locales)
	return &t, nil
}

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// profession returns the categories for a stated profession. Multi-word
// professions match on any known word, e.g. "software engineer".
func (t *Taxonomy) profession(p string) []string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return nil
	}
	if cats, ok := t.Professions[p]; ok {
		return cats
	}
	for _, word := range strings.Fields(p) {
		if cats, ok := t.Professions[word]; ok {
			return cats
		}
	}
	return nil
}

// locale returns the categories for a locale such as "en-US" or "en_GB".
func (t *Taxonomy) locale(l string) []string {
	l = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(l), "_", "-"))
	return t.Locales[l]
}
