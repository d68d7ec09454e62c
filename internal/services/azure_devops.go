package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

// AzureDevOpsOpts параметры подключения к work item tracking API.
type AzureDevOpsOpts struct {
	BaseURL        string `yaml:"baseURL" mapstructure:"baseURL" validate:"required"`
	APIVersion     string `yaml:"apiVersion" mapstructure:"apiVersion"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"min=0"`
}

type AzureDevOpsService struct {
	opts   AzureDevOpsOpts
	logger *slog.Logger
	client *http.Client
}

// NewAzureDevOps инициализирует сервис работы с трекером.
// Авторизация всегда через bearer token вызывающего, сервис свой токен не хранит.
func NewAzureDevOps(opts AzureDevOpsOpts, logger *slog.Logger) *AzureDevOpsService {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.APIVersion == "" {
		opts.APIVersion = "7.0"
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 30
	}

	return &AzureDevOpsService{
		opts:   opts,
		logger: logger,
		client: &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second},
	}
}

// GetWorkItem получает задачу вместе со связями
func (s *AzureDevOpsService) GetWorkItem(ctx context.Context, token, org, project string, id int) (*models.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%d", s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), id)

	params := url.Values{}
	params.Add("$expand", "relations")
	params.Add("api-version", s.opts.APIVersion)

	var item models.WorkItem
	if err := s.doJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), token, nil, "", &item); err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}

	s.logger.Debug("Work item fetched", "id", item.ID, "relations", len(item.Relations))
	return &item, nil
}

// GetWorkItemsBatch получает несколько задач одним запросом
func (s *AzureDevOpsService) GetWorkItemsBatch(ctx context.Context, token, org, project string, ids []int, fields []string) ([]models.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workitemsbatch?api-version=%s",
		s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), s.opts.APIVersion)

	body := map[string]any{"ids": ids}
	if len(fields) > 0 {
		body["fields"] = fields
	}

	var result models.WorkItemBatchResponse
	if err := s.doJSON(ctx, http.MethodPost, endpoint, token, body, "application/json", &result); err != nil {
		return nil, fmt.Errorf("batch get work items: %w", err)
	}

	s.logger.Debug("Work items batch fetched", "requested", len(ids), "received", len(result.Value))
	return result.Value, nil
}

// CreateWorkItem создает задачу через JSON-Patch документ
func (s *AzureDevOpsService) CreateWorkItem(ctx context.Context, token, org, project, itemType string, patch models.PatchDocument) (*models.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/$%s?api-version=%s",
		s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), url.PathEscape(itemType), s.opts.APIVersion)

	var item models.WorkItem
	if err := s.doJSON(ctx, http.MethodPost, endpoint, token, patch, "application/json-patch+json", &item); err != nil {
		return nil, fmt.Errorf("create %q work item: %w", itemType, err)
	}

	s.logger.Info("Work item created", "id", item.ID, "type", itemType)
	return &item, nil
}

// UpdateWorkItem обновляет поля существующей задачи
func (s *AzureDevOpsService) UpdateWorkItem(ctx context.Context, token, org, project string, id int, patch models.PatchDocument) (*models.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%d?api-version=%s",
		s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), id, s.opts.APIVersion)

	var item models.WorkItem
	if err := s.doJSON(ctx, http.MethodPatch, endpoint, token, patch, "application/json-patch+json", &item); err != nil {
		return nil, fmt.Errorf("update work item %d: %w", id, err)
	}

	s.logger.Info("Work item updated", "id", item.ID)
	return &item, nil
}

// GetTeamIterations получает список спринтов команды
func (s *AzureDevOpsService) GetTeamIterations(ctx context.Context, token, org, project, team string) ([]models.Iteration, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/_apis/work/teamsettings/iterations?api-version=%s",
		s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), url.PathEscape(team), s.opts.APIVersion)

	var result models.IterationsResponse
	if err := s.doJSON(ctx, http.MethodGet, endpoint, token, nil, "", &result); err != nil {
		return nil, fmt.Errorf("get team iterations: %w", err)
	}

	return result.Value, nil
}

// GetIterationCapacities получает детальные записи capacity спринта
func (s *AzureDevOpsService) GetIterationCapacities(ctx context.Context, token, org, project, team, iterationID string) ([]models.MemberCapacity, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/_apis/work/teamsettings/iterations/%s/capacities?api-version=%s",
		s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), url.PathEscape(team), url.PathEscape(iterationID), s.opts.APIVersion)

	var result models.CapacitiesResponse
	if err := s.doJSON(ctx, http.MethodGet, endpoint, token, nil, "", &result); err != nil {
		return nil, fmt.Errorf("get iteration capacities: %w", err)
	}

	return result.Value, nil
}

// GetTeamMembers получает список участников команды
func (s *AzureDevOpsService) GetTeamMembers(ctx context.Context, token, org, project, team string) ([]models.TeamMember, error) {
	endpoint := fmt.Sprintf("%s/_apis/projects/%s/teams/%s/members?api-version=%s",
		s.opts.BaseURL+"/"+url.PathEscape(org), url.PathEscape(project), url.PathEscape(team), s.opts.APIVersion)

	var result models.TeamMembersResponse
	if err := s.doJSON(ctx, http.MethodGet, endpoint, token, nil, "", &result); err != nil {
		return nil, fmt.Errorf("get team members: %w", err)
	}

	return result.Value, nil
}

// WorkItemURL возвращает канонический URL задачи для связей.
func (s *AzureDevOpsService) WorkItemURL(org, project string, id int) string {
	return fmt.Sprintf("%s/%s/%s/_apis/wit/workItems/%d", s.opts.BaseURL, url.PathEscape(org), url.PathEscape(project), id)
}

// doJSON выполняет один авторизованный запрос и разбирает JSON ответа
func (s *AzureDevOpsService) doJSON(ctx context.Context, method, endpoint, token string, body any, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("Work tracking API error",
			"method", method,
			"status", resp.StatusCode,
			"body_len", len(data))
		return fmt.Errorf("API status %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response JSON: %w", err)
	}
	return nil
}

// truncate обрезает строку до limit символов
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (" + strconv.Itoa(len(s)) + " bytes)"
}
