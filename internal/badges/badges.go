// Package badges は学習実績に応じたバッジの判定を提供します。
package badges

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// 判定に使う集計値の種類
const (
	MetricStories            = "stories"
	MetricWords              = "words"
	MetricMastered           = "mastered"
	MetricPerfectSubmissions = "perfect_submissions"
	MetricNever              = "never"
)

//go:embed badges.yaml
var definitionsYAML []byte

// Definition はバッジ 1 種類の定義です。
type Definition struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Metric      string `yaml:"metric" json:"-"`
	Threshold   int    `yaml:"threshold" json:"-"`
}

// Stats はバッジ判定に使うユーザーの集計値です。
type Stats struct {
	Stories            int
	Words              int
	Mastered           int
	PerfectSubmissions int
}

type catalog struct {
	Badges []Definition `yaml:"badges"`
}

// Load は YAML からバッジ定義を読み込みます。
func Load(data []byte) ([]Definition, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse badge definitions: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Badges))
	for _, d := range c.Badges {
		if d.ID == "" {
			return nil, fmt.Errorf("badge definition without id")
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id: %s", d.ID)
		}
		seen[d.ID] = struct{}{}
		switch d.Metric {
		case MetricStories, MetricWords, MetricMastered, MetricPerfectSubmissions, MetricNever:
		default:
			return nil, fmt.Errorf("badge %s: unknown metric %q", d.ID, d.Metric)
		}
	}
	return c.Badges, nil
}

// Defaults は組み込みのバッジ定義を返します。
func Defaults() []Definition {
	defs, err := Load(definitionsYAML)
	if err != nil {
		panic(err)
	}
	return defs
}

// Evaluate は stats で解除条件を満たすバッジを定義順に返します。
func Evaluate(defs []Definition, stats Stats) []Definition {
	var unlocked []Definition
	for _, d := range defs {
		if value, ok := metricValue(d.Metric, stats); ok && value >= d.Threshold {
			unlocked = append(unlocked, d)
		}
	}
	return unlocked
}

func metricValue(metric string, stats Stats) (int, bool) {
	switch metric {
	case MetricStories:
		return stats.Stories, true
	case MetricWords:
		return stats.Words, true
	case MetricMastered:
		return stats.Mastered, true
	case MetricPerfectSubmissions:
		return stats.PerfectSubmissions, true
	default:
		return 0, false
	}
}
