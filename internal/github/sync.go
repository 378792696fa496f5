package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// SyncStore is the slice of the repository the sync engine writes
// through.
type SyncStore interface {
	FindTask(ctx context.Context, id uuid.UUID) (*db.Task, error)
	CreateTask(ctx context.Context, data db.CreateTask) (*db.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, data db.UpdateTask) (*db.Task, error)
	FindMappingByIssue(ctx context.Context, linkID uuid.UUID, issueNumber int64) (*db.GitHubIssueMapping, error)
	FindMappingByTask(ctx context.Context, taskID uuid.UUID) (*db.GitHubIssueMapping, error)
	CreateMapping(ctx context.Context, data db.CreateGitHubIssueMapping) (*db.GitHubIssueMapping, error)
	UpdateMappingSyncTimestamps(ctx context.Context, id uuid.UUID, githubUpdatedAt, vibeUpdatedAt *time.Time) error
	UpsertProperty(ctx context.Context, data db.UpsertTaskProperty) (*db.TaskProperty, error)
	UpdateLinkLastSync(ctx context.Context, id uuid.UUID) error
}

// SyncResult summarizes one pull pass. Counters are monotone over the
// pass; per-item failures land in Errors and never abort the loop.
type SyncResult struct {
	ItemsSynced  int      `json:"items_synced"`
	ItemsCreated int      `json:"items_created"`
	ItemsUpdated int      `json:"items_updated"`
	Errors       []string `json:"errors,omitempty"`
}

// Syncer reconciles a linked GitHub Projects v2 board with local tasks.
type Syncer struct {
	provider IssueProvider
}

// NewSyncer creates a sync engine over the given provider.
func NewSyncer(provider IssueProvider) *Syncer {
	return &Syncer{provider: provider}
}

// Provider exposes the underlying provider for availability probes.
func (s *Syncer) Provider() IssueProvider {
	return s.provider
}

// SyncFromGitHub pulls board items and upserts local tasks. Remote
// title and description win, but the local status is never touched for
// mapped tasks; the remote status lands in the github_status property
// instead. Returns the per-item outcome; the error return covers only
// the fetch itself.
func (s *Syncer) SyncFromGitHub(ctx context.Context, store SyncStore, link *db.GitHubProjectLink) (*SyncResult, error) {
	items, err := s.provider.ProjectItems(ctx, link.Owner, link.GitHubProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project items: %w", err)
	}

	result := &SyncResult{}
	for _, item := range items {
		if item.Issue == nil {
			// Draft item, nothing to bind to
			continue
		}
		if err := s.syncItem(ctx, store, link, item, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("issue #%d: %v", item.Issue.Number, err))
			continue
		}
		result.ItemsSynced++
	}

	if err := store.UpdateLinkLastSync(ctx, link.ID); err != nil {
		return result, fmt.Errorf("failed to stamp link sync time: %w", err)
	}
	slog.Info("github sync completed",
		"link_id", link.ID,
		"synced", result.ItemsSynced,
		"created", result.ItemsCreated,
		"updated", result.ItemsUpdated,
		"errors", len(result.Errors))
	return result, nil
}

func (s *Syncer) syncItem(ctx context.Context, store SyncStore, link *db.GitHubProjectLink, item ProjectItem, result *SyncResult) error {
	issue := item.Issue

	mapping, err := store.FindMappingByIssue(ctx, link.ID, issue.Number)
	switch {
	case err == nil:
		if mapping.SyncDirection == db.SyncVibeToGithub {
			return nil
		}
		if _, err := store.UpdateTask(ctx, mapping.TaskID, db.UpdateTask{
			Title:       &issue.Title,
			Description: &issue.Body,
		}); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		updatedAt := issue.UpdatedAt
		if err := store.UpdateMappingSyncTimestamps(ctx, mapping.ID, &updatedAt, nil); err != nil {
			return fmt.Errorf("failed to update mapping timestamps: %w", err)
		}
		if err := s.upsertItemProperties(ctx, store, mapping.TaskID, item); err != nil {
			return err
		}
		result.ItemsUpdated++
		return nil

	case errors.Is(err, db.ErrNotFound):
		task, err := store.CreateTask(ctx, db.CreateTask{
			ProjectID:   link.ProjectID,
			Title:       issue.Title,
			Description: &issue.Body,
			Status:      db.StatusTodo,
		})
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if _, err := store.CreateMapping(ctx, db.CreateGitHubIssueMapping{
			TaskID:        task.ID,
			LinkID:        link.ID,
			IssueNumber:   issue.Number,
			IssueID:       issue.ID,
			IssueURL:      issue.URL,
			SyncDirection: db.SyncBidirectional,
		}); err != nil {
			return fmt.Errorf("failed to create mapping: %w", err)
		}
		if err := s.upsertItemProperties(ctx, store, task.ID, item); err != nil {
			return err
		}
		result.ItemsCreated++
		return nil

	default:
		return fmt.Errorf("failed to look up mapping: %w", err)
	}
}

// upsertItemProperties mirrors remote metadata into task properties so
// the core Task row stays narrow.
func (s *Syncer) upsertItemProperties(ctx context.Context, store SyncStore, taskID uuid.UUID, item ProjectItem) error {
	issue := item.Issue
	props := []db.UpsertTaskProperty{
		{TaskID: taskID, Name: "github_issue_url", Value: issue.URL, Source: db.SourceGithub},
		{TaskID: taskID, Name: "github_issue_number", Value: strconv.FormatInt(issue.Number, 10), Source: db.SourceGithub},
		{TaskID: taskID, Name: "labels", Value: jsonString(issue.Labels), Source: db.SourceGithub},
		{TaskID: taskID, Name: "github_assignees", Value: jsonString(issue.Assignees), Source: db.SourceGithub},
	}
	if issue.Milestone != nil {
		props = append(props, db.UpsertTaskProperty{
			TaskID: taskID, Name: "milestone", Value: jsonString(issue.Milestone), Source: db.SourceGithub,
		})
	}
	for _, fv := range item.FieldValues {
		props = append(props, db.UpsertTaskProperty{
			TaskID: taskID,
			Name:   "github_" + snakeCase(fv.Field),
			Value:  fv.Value,
			Source: db.SourceGithub,
		})
	}
	for _, p := range props {
		if _, err := store.UpsertProperty(ctx, p); err != nil {
			return fmt.Errorf("failed to upsert property %s: %w", p.Name, err)
		}
	}
	return nil
}

// SyncTaskToGitHub pushes a local task's title, description and derived
// issue state to its mapped issue. Tasks without a mapping, and
// mappings that only pull, are no-ops.
func (s *Syncer) SyncTaskToGitHub(ctx context.Context, store SyncStore, task *db.Task) error {
	mapping, err := store.FindMappingByTask(ctx, task.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up mapping: %w", err)
	}
	if mapping.SyncDirection == db.SyncGithubToVibe {
		return nil
	}

	body := ""
	if task.Description != nil {
		body = *task.Description
	}
	if err := s.provider.UpdateIssue(ctx, mapping.IssueID, task.Title, body, VibeToGithubState(task.Status)); err != nil {
		return fmt.Errorf("failed to push issue update: %w", err)
	}

	now := time.Now().UTC()
	if err := store.UpdateMappingSyncTimestamps(ctx, mapping.ID, nil, &now); err != nil {
		return fmt.Errorf("failed to update mapping timestamps: %w", err)
	}
	return nil
}
