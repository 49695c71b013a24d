// Package plan defines the evaluation Plan value and its closed schema.
package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProblemType is the closed set of evaluation formats.
type ProblemType string

// Closed set of problem types.
const (
	ProblemBinary     ProblemType = "Binary"
	ProblemMCQA       ProblemType = "MCQA"
	ProblemShortForm  ProblemType = "short-form"
	ProblemOpenEnded  ProblemType = "open-ended"
)

// TargetType is the closed set of evaluation targets.
type TargetType string

// Closed set of target types.
const (
	TargetGeneral TargetType = "General"
	TargetLocal   TargetType = "Local"
)

// TaskType is the closed set of evaluation task categories.
type TaskType string

// Closed set of task types.
const (
	TaskKnowledge  TaskType = "Knowledge"
	TaskReasoning  TaskType = "Reasoning"
	TaskValue      TaskType = "Value"
	TaskAlignment  TaskType = "Alignment"
)

var (
	validProblemTypes = map[ProblemType]bool{
		ProblemBinary: true, ProblemMCQA: true, ProblemShortForm: true, ProblemOpenEnded: true,
	}
	validTargetTypes = map[TargetType]bool{
		TargetGeneral: true, TargetLocal: true,
	}
	validTaskTypes = map[TaskType]bool{
		TaskKnowledge: true, TaskReasoning: true, TaskValue: true, TaskAlignment: true,
	}
)

// Metadata is the human-facing, non-canonical part of a Plan.
type Metadata struct {
	Name        string
	Description string
}

// Profile is the evaluation profile requested by the caller.
type Profile struct {
	ProblemType        ProblemType
	TargetType         TargetType
	TaskType           TaskType
	ExternalToolUsage  bool
	Language           string
	SubjectTypes       []string
	SampleSize         int
	Seed               *int64
}

// ModelConfig identifies one model endpoint under evaluation.
//
// CredentialHandle is opaque to everything except the credential
// envelope: it never appears in a Task snapshot and is never logged.
type ModelConfig struct {
	Name             string
	ProviderKind     string
	Endpoint         string
	CredentialHandle string
}

// Directives are evaluation-run knobs. ScoringMethod is part of the
// fingerprint; PerCallTimeout and BatchSize do not affect equivalence.
type Directives struct {
	ScoringMethod string
	PerCallTimeout time.Duration
	BatchSize      int
}

// Plan is the unit of work submitted to the dispatcher.
type Plan struct {
	SchemaVersion   string
	Metadata        Metadata
	Profile         Profile
	Models          []ModelConfig
	Directives      Directives
	SubmittedAt     time.Time
}

// Taxonomy validates subject_type tags against a closed set supplied at
// construction time: membership is a deployment input, not a fixed
// contract of this package.
type Taxonomy struct {
	allowed map[string]bool
}

// NewTaxonomy builds a Taxonomy from a flat list of allowed subject tags.
func NewTaxonomy(subjects []string) *Taxonomy {
	t := &Taxonomy{allowed: make(map[string]bool, len(subjects))}
	for _, s := range subjects {
		t.allowed[s] = true
	}
	return t
}

// Allows reports whether subject is a member of the taxonomy. A nil or
// empty Taxonomy allows everything, so a caller who does not wire a
// taxonomy still gets schema-level validation.
func (t *Taxonomy) Allows(subject string) bool {
	if t == nil || len(t.allowed) == 0 {
		return true
	}
	return t.allowed[subject]
}

// Limits bounds plan fields the validator must clamp or reject.
type Limits struct {
	MaxSampleSize int
}

// DefaultLimits returns a conservative fallback used when config
// omits an explicit MaxSampleSize.
func DefaultLimits() Limits {
	return Limits{MaxSampleSize: 100000}
}

// Validate checks the plan's schema invariants and clamps sample_size
// to the configured maximum. It returns an error describing the first
// violation found.
func (p *Plan) Validate(tax *Taxonomy, limits Limits) error {
	if strings.TrimSpace(p.SchemaVersion) == "" {
		return fmt.Errorf("plan schema_version is required")
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("plan must name at least one model")
	}
	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("model name is required")
		}
		if strings.TrimSpace(m.Endpoint) == "" {
			return fmt.Errorf("model %q missing endpoint", m.Name)
		}
		key := m.Name + "|" + m.Endpoint
		if seen[key] {
			return fmt.Errorf("duplicate model %q at endpoint %q", m.Name, m.Endpoint)
		}
		seen[key] = true
	}
	if len(p.Profile.SubjectTypes) == 0 {
		return fmt.Errorf("plan must name at least one subject_type")
	}
	for _, s := range p.Profile.SubjectTypes {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("subject_type entries must not be blank")
		}
		if !tax.Allows(s) {
			return fmt.Errorf("subject_type %q is not in the configured taxonomy", s)
		}
	}
	if p.Profile.SampleSize < 1 {
		return fmt.Errorf("sample_size must be >= 1")
	}
	if limits.MaxSampleSize > 0 && p.Profile.SampleSize > limits.MaxSampleSize {
		p.Profile.SampleSize = limits.MaxSampleSize
	}
	if !validProblemTypes[p.Profile.ProblemType] {
		return fmt.Errorf("problem_type %q is not one of the closed set", p.Profile.ProblemType)
	}
	if !validTargetTypes[p.Profile.TargetType] {
		return fmt.Errorf("target_type %q is not one of the closed set", p.Profile.TargetType)
	}
	if !validTaskTypes[p.Profile.TaskType] {
		return fmt.Errorf("task_type %q is not one of the closed set", p.Profile.TaskType)
	}
	return nil
}

// SortedSubjectTypes returns a lowercase-trimmed, sorted copy of the
// subject tags, used by the fingerprinter.
func (p *Plan) SortedSubjectTypes() []string {
	out := make([]string, len(p.Profile.SubjectTypes))
	copy(out, p.Profile.SubjectTypes)
	for i, s := range out {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}

// SortedModels returns models sorted by (name, endpoint) ascending,
// with credentials stripped, so two plans differing only in model
// order or credentials fingerprint identically.
func (p *Plan) SortedModels() []ModelConfig {
	out := make([]ModelConfig, len(p.Models))
	for i, m := range p.Models {
		out[i] = ModelConfig{Name: m.Name, ProviderKind: m.ProviderKind, Endpoint: m.Endpoint}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

// Redacted returns a copy of the plan with every credential handle
// cleared, safe to embed in a Task snapshot.
func (p *Plan) Redacted() Plan {
	cp := *p
	cp.Models = make([]ModelConfig, len(p.Models))
	for i, m := range p.Models {
		m.CredentialHandle = ""
		cp.Models[i] = m
	}
	return cp
}

// ModelNames returns the plan's model names in submission order.
func (p *Plan) ModelNames() []string {
	names := make([]string, len(p.Models))
	for i, m := range p.Models {
		names[i] = m.Name
	}
	return names
}
