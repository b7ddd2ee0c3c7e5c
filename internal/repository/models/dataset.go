// Package models contains data structures used by the dataset repository layer.
package models

import (
	"fmt"
	"time"
)

type Dataset string

const (
	DatasetTasks Dataset = "tasks"
	DatasetSLA   Dataset = "sla"
)

func ParseDataset(s string) (Dataset, error) {
	switch Dataset(s) {
	case DatasetTasks, DatasetSLA:
		return Dataset(s), nil
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// DedupStats accounts for every received row: Received = Filtered + Duplicates + Inserted.
type DedupStats struct {
	Received   int `json:"received"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`
	Inserted   int `json:"inserted"`
}

type DatasetSummary struct {
	Owner     string     `json:"owner"`
	Dataset   Dataset    `json:"dataset"`
	Rows      int        `json:"rows"`
	Columns   []string   `json:"columns"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
