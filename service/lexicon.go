package service

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	CategoryRiskKeywords = "risk_keywords"
	CategoryCoreTerms    = "core_terms"
)

// defaultRiskKeywords is used when the domain dictionary cannot be loaded.
var defaultRiskKeywords = []string{"围标", "串标", "恶意低价", "资质造假"}

// DomainLexicon is loaded once at startup and only read afterwards.
type DomainLexicon struct {
	categories    map[string][]string
	conflictRules map[string]float64
}

type lexiconFile struct {
	Categories    map[string][]string `yaml:"categories"`
	ConflictRules map[string]float64  `yaml:"intent_conflict_rules"`
}

// LoadDomainLexicon reads the YAML dictionary. The returned error is only
// informational: the lexicon is always usable, falling back to the built-in
// risk keywords.
func LoadDomainLexicon(path string) (*DomainLexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FallbackLexicon(), fmt.Errorf("读取领域词典失败: %w", err)
	}

	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return FallbackLexicon(), fmt.Errorf("解析领域词典失败: %w", err)
	}
	return NewDomainLexicon(f.Categories, f.ConflictRules), nil
}

// NewDomainLexicon copies the given maps; risk_keywords is filled from the
// built-in list when absent.
func NewDomainLexicon(categories map[string][]string, conflictRules map[string]float64) *DomainLexicon {
	l := &DomainLexicon{
		categories:    make(map[string][]string, len(categories)+1),
		conflictRules: make(map[string]float64, len(conflictRules)),
	}
	for k, v := range categories {
		l.categories[k] = append([]string(nil), v...)
	}
	for k, v := range conflictRules {
		l.conflictRules[k] = v
	}
	if len(l.categories[CategoryRiskKeywords]) == 0 {
		l.categories[CategoryRiskKeywords] = append([]string(nil), defaultRiskKeywords...)
	}
	return l
}

func FallbackLexicon() *DomainLexicon {
	return NewDomainLexicon(nil, nil)
}

func (l *DomainLexicon) RiskKeywords() []string {
	return l.categories[CategoryRiskKeywords]
}

func (l *DomainLexicon) Terms(category string) []string {
	return l.categories[category]
}

// Categories returns category names in sorted order so feature extraction
// is deterministic.
func (l *DomainLexicon) Categories() []string {
	names := make([]string, 0, len(l.categories))
	for k := range l.categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ConflictWeight looks up the "Core-Aux" rule, zero when absent.
func (l *DomainLexicon) ConflictWeight(key string) float64 {
	return l.conflictRules[key]
}

func (l *DomainLexicon) TermCount() int {
	n := 0
	for _, v := range l.categories {
		n += len(v)
	}
	return n
}
