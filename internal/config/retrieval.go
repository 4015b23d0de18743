package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/source-aware-retrieval/internal/core/fallback"
	"github.com/kirillkom/source-aware-retrieval/internal/core/relevance"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/resilience"
)

// Retrieval is the tuning file referenced by RETRIEVAL_CONFIG_PATH.
type Retrieval struct {
	Relevance  relevance.Config  `yaml:"relevance"`
	Fallback   fallback.Config   `yaml:"fallback"`
	Query      Query             `yaml:"query"`
	Resilience resilience.Config `yaml:"resilience"`
	// GeneralKnowledge maps category -> topic -> answer.
	GeneralKnowledge map[string]map[string]string `yaml:"general_knowledge"`
}

type Query struct {
	DefaultLimit int    `yaml:"default_limit"`
	Mode         string `yaml:"mode"`
	RRFK         int    `yaml:"rrf_k"`
	Aggregation  string `yaml:"aggregation"`
	// CategoryTriggers maps a query keyword to the category it selects.
	CategoryTriggers map[string]string `yaml:"category_triggers"`
}

func DefaultRetrieval() Retrieval {
	return Retrieval{
		Relevance:  relevance.DefaultConfig(),
		Fallback:   fallback.DefaultConfig(),
		Query:      Query{DefaultLimit: 5, Mode: "semantic", RRFK: 60, Aggregation: "top1"},
		Resilience: resilience.DefaultConfig(),
	}
}

// LoadRetrieval overlays the YAML file on DefaultRetrieval. An empty path returns the defaults.
func LoadRetrieval(path string) (Retrieval, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRetrieval(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Retrieval{}, fmt.Errorf("read retrieval config %s: %w", path, err)
	}
	cfg, err := ParseRetrieval(raw)
	if err != nil {
		return Retrieval{}, fmt.Errorf("parse retrieval config %s: %w", path, err)
	}
	return cfg, nil
}

func ParseRetrieval(raw []byte) (Retrieval, error) {
	cfg := DefaultRetrieval()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Retrieval{}, err
	}
	if err := cfg.validate(); err != nil {
		return Retrieval{}, err
	}
	return cfg, nil
}

func (r Retrieval) validate() error {
	switch r.Query.Mode {
	case "", "semantic", "hybrid":
	default:
		return fmt.Errorf("query.mode: unsupported value %q", r.Query.Mode)
	}
	switch r.Query.Aggregation {
	case "", "top1", "mean":
	default:
		return fmt.Errorf("query.aggregation: unsupported value %q", r.Query.Aggregation)
	}
	for factor, w := range r.Relevance.Weights {
		if w < 0 {
			return fmt.Errorf("relevance.weights.%s: must not be negative", factor)
		}
	}
	return nil
}
