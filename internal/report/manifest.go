package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

const ManifestFile = "sweep.json"

type TaskSection struct {
	Task    types.Task     `json:"task"`
	File    string         `json:"file"`
	Columns []string       `json:"columns"`
	Records []types.Record `json:"records"`
}

// Manifest describes one completed sweep.
type Manifest struct {
	SweepID           string        `json:"sweep_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	ConfigDigest      string        `json:"config_digest"`
	DataRoot          string        `json:"data_root"`
	OutRoot           string        `json:"out_root"`
	Datasets          []string      `json:"datasets"`
	Variants          []string      `json:"variants"`
	CheckpointIndices []int         `json:"checkpoint_indices"`
	Seeds             []int64       `json:"seeds"`
	Tasks             []TaskSection `json:"tasks"`
}

func NewSweepID() string {
	return uuid.NewString()
}

func (m Manifest) RecordCount() int {
	n := 0
	for _, s := range m.Tasks {
		n += len(s.Records)
	}
	return n
}

func WriteJSON(path string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func ReadJSON(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}
