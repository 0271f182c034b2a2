package model

import (
	"path/filepath"
	"strings"
)

// Task is a unit of scheduling work: one file awaiting encryption or
// decryption (§3). Priority is a predicted seconds-to-process value;
// smaller runs first.
type Task struct {
	Priority float64 `json:"priority"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Suffix   string  `json:"suffix"`
}

// NewTask builds a Task for path, normalizing the suffix the way the
// predictor keys its throughput map: lower-cased, dot included.
func NewTask(path string, size int64) Task {
	return Task{
		Path:   path,
		Size:   size,
		Suffix: strings.ToLower(filepath.Ext(path)),
	}
}
