package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/user/poe/internal/database"
	"github.com/user/poe/pkg/release"
)

var ErrNotFound = errors.New("release request not found")

// Service persists release requests and the history of their transitions.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Save inserts req or overwrites the stored copy with the same ID.
func (s *Service) Save(ctx context.Context, req *release.Request) error {
	record, err := toRecord(req)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("saving release %s: %w", req.ID, err)
	}
	return nil
}

func toRecord(req *release.Request) (*database.ReleaseRecord, error) {
	payload, err := release.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encoding release %s: %w", req.ID, err)
	}

	record := &database.ReleaseRecord{
		ID:          req.ID,
		Owner:       req.Repo.Owner,
		Repo:        req.Repo.Name,
		Version:     req.Next.Next,
		HeadSHA:     req.Next.HeadCommit,
		State:       string(req.State),
		Completed:   req.Completed,
		Superseded:  req.Superseded,
		IssueNumber: req.IssueNumber,
		CheckRunID:  req.CheckRunID,
		Attempts:    req.Attempts,
		Payload:     payload,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   time.Now().Unix(),
	}
	if channel, err := req.Channel(); err == nil {
		record.Channel = channel.Name
	}

	results := make(map[string]database.GateResult, len(req.Results))
	for id, resp := range req.Results {
		results[id] = database.GateResult{OK: resp.OK, Message: resp.Message}
	}
	if err := record.SetGateResults(results); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id string) (*release.Request, error) {
	record, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return decode(record)
}

func (s *Service) GetRecord(ctx context.Context, id string) (*database.ReleaseRecord, error) {
	var record database.ReleaseRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("release %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting release: %w", err)
	}
	return &record, nil
}

// FindByIssue returns the request whose approval issue is number.
func (s *Service) FindByIssue(ctx context.Context, repo release.Repo, number int) (*release.Request, error) {
	var record database.ReleaseRecord
	err := s.db.WithContext(ctx).
		Where("owner = ? AND repo = ? AND issue_number = ?", repo.Owner, repo.Name, number).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("release for issue #%d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding release by issue: %w", err)
	}
	return decode(&record)
}

// FindByCheckRun returns the request whose check run is id.
func (s *Service) FindByCheckRun(ctx context.Context, repo release.Repo, id int64) (*release.Request, error) {
	var record database.ReleaseRecord
	err := s.db.WithContext(ctx).
		Where("owner = ? AND repo = ? AND check_run_id = ?", repo.Owner, repo.Name, id).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("release for check run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding release by check run: %w", err)
	}
	return decode(&record)
}

// FindByVersion returns the latest live request proposing version in repo.
// Superseded requests are skipped.
func (s *Service) FindByVersion(ctx context.Context, repo release.Repo, version string) (*release.Request, error) {
	var record database.ReleaseRecord
	err := s.db.WithContext(ctx).
		Where("owner = ? AND repo = ? AND version = ? AND superseded = ?", repo.Owner, repo.Name, version, false).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("release %s: %w", version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding release by version: %w", err)
	}
	return decode(&record)
}

// ListPendingByHeadSHA returns the live unpublished requests for a commit.
func (s *Service) ListPendingByHeadSHA(ctx context.Context, repo release.Repo, sha string) ([]*release.Request, error) {
	var records []database.ReleaseRecord
	err := s.db.WithContext(ctx).
		Where("owner = ? AND repo = ? AND head_sha = ? AND completed = ? AND superseded = ?", repo.Owner, repo.Name, sha, false, false).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending releases: %w", err)
	}

	requests := make([]*release.Request, 0, len(records))
	for i := range records {
		req, err := decode(&records[i])
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// ListIncomplete returns every live unpublished request, oldest first.
func (s *Service) ListIncomplete(ctx context.Context) ([]*release.Request, error) {
	var records []database.ReleaseRecord
	err := s.db.WithContext(ctx).
		Where("completed = ? AND superseded = ?", false, false).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing incomplete releases: %w", err)
	}

	requests := make([]*release.Request, 0, len(records))
	for i := range records {
		req, err := decode(&records[i])
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (s *Service) List(ctx context.Context, state string) ([]database.ReleaseRecord, error) {
	var records []database.ReleaseRecord
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	return records, nil
}

func decode(record *database.ReleaseRecord) (*release.Request, error) {
	req, err := release.Decode(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding release %s: %w", record.ID, err)
	}
	return req, nil
}

func (s *Service) RecordHistory(ctx context.Context, releaseID, action, actor string, details map[string]any) error {
	var detailsJSON string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling history details: %w", err)
		}
		detailsJSON = string(data)
	}

	history := database.ReleaseHistory{
		ReleaseID: releaseID,
		Action:    action,
		Actor:     actor,
		Details:   detailsJSON,
		CreatedAt: time.Now().Unix(),
	}

	if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
		return fmt.Errorf("creating history entry: %w", err)
	}

	return nil
}

func (s *Service) GetHistory(ctx context.Context, releaseID string) ([]database.ReleaseHistory, error) {
	var history []database.ReleaseHistory
	err := s.db.WithContext(ctx).
		Where("release_id = ?", releaseID).
		Order("created_at DESC, id DESC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	return history, nil
}
