// Package sample defines the Sample value: one scored item produced
// during a task.
package sample

import "time"

// Sample is write-once per (TaskID, ModelName, Index).
type Sample struct {
	TaskID       string
	ModelName    string
	Index        int // position within this (task, model) batch
	Prompt       string
	Answer       string
	Correctness  float64 // in [0, 1]
	SkillLabel   string
	TargetLabel  string
	SubjectLabel string
	TaskLabel    string
	DatasetName  string
	Metadata     map[string]string
	Timestamp    time.Time

	// Fingerprint denormalizes the owning task's fingerprint onto each
	// row so the result store can serve aggregate_by_fingerprint
	// without a join back to the registry.
	Fingerprint string

	// Language denormalizes the owning plan's language onto each row.
	// The cache row key groups by language, but language is a
	// plan-level field rather than a per-sample source-row label; the
	// worker stamps it here at write time so aggregation needs no join
	// back to the task.
	Language string
}

// Key uniquely identifies a sample for idempotent writes.
type Key struct {
	TaskID    string
	ModelName string
	Index     int
}

// KeyOf returns s's identity key.
func (s Sample) KeyOf() Key {
	return Key{TaskID: s.TaskID, ModelName: s.ModelName, Index: s.Index}
}
