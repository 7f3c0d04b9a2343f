package database

import (
	"encoding/json"
	"fmt"
)

// ReleaseRecord is the stored form of one release request. Payload holds the
// encoded request, the remaining columns exist for querying.
type ReleaseRecord struct {
	ID          string `gorm:"primaryKey"`
	Owner       string `gorm:"not null;index:idx_repo"`
	Repo        string `gorm:"not null;index:idx_repo"`
	Version     string `gorm:"not null;index"`
	Channel     string
	HeadSHA     string `gorm:"not null;index"`
	State       string `gorm:"not null;index"`
	Completed   bool   `gorm:"default:false"`
	Superseded  bool   `gorm:"default:false"`
	IssueNumber int    `gorm:"index"`
	CheckRunID  int64  `gorm:"index"`
	Attempts    int
	GateResults string
	Payload     string `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null"`
	UpdatedAt   int64
}

func (r *ReleaseRecord) GetGateResults() (map[string]GateResult, error) {
	if r.GateResults == "" {
		return nil, nil
	}
	var results map[string]GateResult
	if err := json.Unmarshal([]byte(r.GateResults), &results); err != nil {
		return nil, fmt.Errorf("unmarshaling gate_results: %w", err)
	}
	return results, nil
}

func (r *ReleaseRecord) SetGateResults(results map[string]GateResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshaling gate_results: %w", err)
	}
	r.GateResults = string(data)
	return nil
}

type GateResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type ReleaseHistory struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ReleaseID string `gorm:"not null;index"`
	Action    string `gorm:"not null"`
	Actor     string
	Details   string
	CreatedAt int64 `gorm:"not null;index"`
}
