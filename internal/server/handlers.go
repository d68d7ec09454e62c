package server

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/DevN0mad/SprintPilot/internal/models"
	"github.com/DevN0mad/SprintPilot/internal/services"
)

// handleAnalyze строит инструкцию по действию и ретранслирует ответ генеративного сервиса.
func (s *APIServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Action) == "" {
		s.writeError(w, http.StatusBadRequest, "title and action are required")
		return
	}

	prompt := services.BuildPrompt(req)

	output, err := s.generator.Complete(r.Context(), prompt)
	if err != nil {
		s.logger.Error("Analyze failed", "action", req.Action, "error", err)
		s.recordHistory(r.Context(), models.RequestRecord{Route: "analyze", Action: req.Action, Status: http.StatusInternalServerError, Detail: "generation failed"})
		s.writeError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	// Шаблоны с JSON контрактом проверяются до ретрансляции клиенту.
	if services.IsJSONAction(req.Action) {
		output, err = services.ValidateJSONOutput(output)
		if err != nil {
			s.logger.Error("Malformed generation output", "action", req.Action, "error", err)
			s.recordHistory(r.Context(), models.RequestRecord{Route: "analyze", Action: req.Action, Status: http.StatusInternalServerError, Detail: "malformed output"})
			s.writeError(w, http.StatusInternalServerError, "generation service returned malformed output")
			return
		}
	}

	s.recordHistory(r.Context(), models.RequestRecord{Route: "analyze", Action: req.Action, Status: http.StatusOK})
	s.writeJSON(w, http.StatusOK, models.AnalyzeResponse{Output: output})
}

// handleFeatureStories отдает дочерние user stories фичи одним batch-запросом.
func (s *APIServer) handleFeatureStories(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	org := r.PathValue("org")
	project := r.PathValue("project")

	featureID, err := strconv.Atoi(r.PathValue("featureId"))
	if err != nil || featureID <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid feature id")
		return
	}

	feature, err := s.tracker.GetWorkItem(r.Context(), token, org, project, featureID)
	if err != nil {
		s.logger.Error("Fetch feature failed", "feature_id", featureID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch feature stories")
		return
	}

	var childIDs []int
	for _, rel := range feature.Relations {
		if rel.Rel != models.RelHierarchyForward {
			continue
		}
		if id, ok := trailingID(rel.URL); ok {
			childIDs = append(childIDs, id)
		}
	}

	if len(childIDs) == 0 {
		s.writeJSON(w, http.StatusOK, models.FeatureStoriesResponse{Stories: []models.StorySummary{}})
		return
	}

	items, err := s.tracker.GetWorkItemsBatch(r.Context(), token, org, project, childIDs, []string{
		models.FieldTitle,
		models.FieldDescription,
		models.FieldStoryPoints,
		models.FieldState,
	})
	if err != nil {
		s.logger.Error("Batch fetch stories failed", "feature_id", featureID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch feature stories")
		return
	}

	stories := make([]models.StorySummary, 0, len(items))
	for i := range items {
		item := &items[i]
		stories = append(stories, models.StorySummary{
			ID:          item.ID,
			Title:       item.StringField(models.FieldTitle),
			Description: item.StringField(models.FieldDescription),
			StoryPoints: item.NumberField(models.FieldStoryPoints),
			State:       item.StringField(models.FieldState),
		})
	}

	s.writeJSON(w, http.StatusOK, models.FeatureStoriesResponse{Stories: stories})
}

// handleCreateTasks создает задачи, связанные с родительской user story.
// При частичном сбое ответ перечисляет уже созданные id.
func (s *APIServer) handleCreateTasks(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	var req models.CreateTasksRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Org == "" || req.Project == "" || req.UserStoryID <= 0 || len(req.Tasks) == 0 {
		s.writeError(w, http.StatusBadRequest, "org, project, userStoryId and tasks are required")
		return
	}

	parentURL := s.tracker.WorkItemURL(req.Org, req.Project, req.UserStoryID)
	createdIDs := make([]int, 0, len(req.Tasks))

	for _, task := range req.Tasks {
		patch := models.PatchDocument{}.
			AddField(models.FieldTitle, task.Title)
		if task.Description != "" {
			patch = patch.AddField(models.FieldDescription, task.Description)
		}
		if task.Estimate > 0 {
			patch = patch.AddField(models.FieldRemainingWork, task.Estimate)
		}
		patch = patch.AddRelation(models.RelHierarchyReverse, parentURL)

		item, err := s.tracker.CreateWorkItem(r.Context(), token, req.Org, req.Project, "Task", patch)
		if err != nil {
			s.logger.Error("Task creation failed",
				"parent_id", req.UserStoryID,
				"created_so_far", len(createdIDs),
				"error", err)
			s.recordHistory(r.Context(), models.RequestRecord{Route: "create-tasks", Org: req.Org, Project: req.Project, Status: http.StatusInternalServerError, Detail: fmt.Sprintf("created %d of %d", len(createdIDs), len(req.Tasks))})
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":        "Task creation failed",
				"createdTasks": createdIDs,
			})
			return
		}
		createdIDs = append(createdIDs, item.ID)
	}

	s.recordHistory(r.Context(), models.RequestRecord{Route: "create-tasks", Org: req.Org, Project: req.Project, Status: http.StatusOK, Detail: fmt.Sprintf("created %d", len(createdIDs))})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"createdTasks": createdIDs,
	})
}

// handleCreateTestCases создает тест-кейсы с шагами в XML формате трекера.
func (s *APIServer) handleCreateTestCases(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	var req models.CreateTestCasesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Org == "" || req.Project == "" || req.UserStoryID <= 0 || len(req.TestCases) == 0 {
		s.writeError(w, http.StatusBadRequest, "org, project, userStoryId and testCases are required")
		return
	}

	storyURL := s.tracker.WorkItemURL(req.Org, req.Project, req.UserStoryID)
	createdIDs := make([]int, 0, len(req.TestCases))

	for _, tc := range req.TestCases {
		patch := models.PatchDocument{}.
			AddField(models.FieldTitle, tc.Title)
		if len(tc.Steps) > 0 {
			patch = patch.AddField(models.FieldTestSteps, renderTestSteps(tc.Steps))
		}
		patch = patch.AddRelation(models.RelTestedByReverse, storyURL)

		item, err := s.tracker.CreateWorkItem(r.Context(), token, req.Org, req.Project, "Test Case", patch)
		if err != nil {
			s.logger.Error("Test case creation failed",
				"story_id", req.UserStoryID,
				"created_so_far", len(createdIDs),
				"error", err)
			s.recordHistory(r.Context(), models.RequestRecord{Route: "create-testcases", Org: req.Org, Project: req.Project, Status: http.StatusInternalServerError, Detail: fmt.Sprintf("created %d of %d", len(createdIDs), len(req.TestCases))})
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":            "Test case creation failed",
				"createdTestCases": createdIDs,
			})
			return
		}
		createdIDs = append(createdIDs, item.ID)
	}

	s.recordHistory(r.Context(), models.RequestRecord{Route: "create-testcases", Org: req.Org, Project: req.Project, Status: http.StatusOK, Detail: fmt.Sprintf("created %d", len(createdIDs))})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"createdTestCases": createdIDs,
	})
}

// handleCreateStories создает user stories, связанные с родительской фичей.
func (s *APIServer) handleCreateStories(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	var req models.CreateStoriesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Org == "" || req.Project == "" || req.FeatureID <= 0 || len(req.Stories) == 0 {
		s.writeError(w, http.StatusBadRequest, "org, project, featureId and stories are required")
		return
	}

	featureURL := s.tracker.WorkItemURL(req.Org, req.Project, req.FeatureID)
	createdIDs := make([]int, 0, len(req.Stories))

	for _, story := range req.Stories {
		patch := models.PatchDocument{}.
			AddField(models.FieldTitle, story.Title)
		if story.Description != "" {
			patch = patch.AddField(models.FieldDescription, story.Description)
		}
		if story.StoryPoints > 0 {
			patch = patch.AddField(models.FieldStoryPoints, story.StoryPoints)
		}
		if story.Priority >= 1 && story.Priority <= 4 {
			patch = patch.AddField(models.FieldPriority, story.Priority)
		}
		if story.Risk != "" {
			patch = patch.AddField(models.FieldRisk, story.Risk)
		}
		patch = patch.AddRelation(models.RelHierarchyReverse, featureURL)

		item, err := s.tracker.CreateWorkItem(r.Context(), token, req.Org, req.Project, "User Story", patch)
		if err != nil {
			s.logger.Error("Story creation failed",
				"feature_id", req.FeatureID,
				"created_so_far", len(createdIDs),
				"error", err)
			s.recordHistory(r.Context(), models.RequestRecord{Route: "create-stories", Org: req.Org, Project: req.Project, Status: http.StatusInternalServerError, Detail: fmt.Sprintf("created %d of %d", len(createdIDs), len(req.Stories))})
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":          "Story creation failed",
				"createdStories": createdIDs,
			})
			return
		}
		createdIDs = append(createdIDs, item.ID)
	}

	s.recordHistory(r.Context(), models.RequestRecord{Route: "create-stories", Org: req.Org, Project: req.Project, Status: http.StatusOK, Detail: fmt.Sprintf("created %d", len(createdIDs))})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"createdStories": createdIDs,
	})
}

// handleUpdateStories обновляет title и story points существующих stories.
func (s *APIServer) handleUpdateStories(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	var req models.UpdateStoriesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Org == "" || req.Project == "" || len(req.Stories) == 0 {
		s.writeError(w, http.StatusBadRequest, "org, project and stories are required")
		return
	}

	updatedIDs := make([]int, 0, len(req.Stories))

	for _, story := range req.Stories {
		if story.ID <= 0 {
			s.writeError(w, http.StatusBadRequest, "story id is required")
			return
		}

		patch := models.PatchDocument{}
		if story.Title != "" {
			patch = patch.ReplaceField(models.FieldTitle, story.Title)
		}
		if story.StoryPoints != nil {
			patch = patch.ReplaceField(models.FieldStoryPoints, *story.StoryPoints)
		}
		if len(patch) == 0 {
			continue
		}

		if _, err := s.tracker.UpdateWorkItem(r.Context(), token, req.Org, req.Project, story.ID, patch); err != nil {
			s.logger.Error("Story update failed",
				"story_id", story.ID,
				"updated_so_far", len(updatedIDs),
				"error", err)
			s.recordHistory(r.Context(), models.RequestRecord{Route: "update-stories", Org: req.Org, Project: req.Project, Status: http.StatusInternalServerError, Detail: fmt.Sprintf("updated %d of %d", len(updatedIDs), len(req.Stories))})
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":          "Story update failed",
				"updatedStories": updatedIDs,
			})
			return
		}
		updatedIDs = append(updatedIDs, story.ID)
	}

	s.recordHistory(r.Context(), models.RequestRecord{Route: "update-stories", Org: req.Org, Project: req.Project, Status: http.StatusOK, Detail: fmt.Sprintf("updated %d", len(updatedIDs))})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"updatedStories": updatedIDs,
	})
}

// handleComputeCapacity считает capacity трёх плановых спринтов команды.
func (s *APIServer) handleComputeCapacity(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	var req models.ComputeCapacityRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Org == "" || req.Project == "" || req.Team == "" {
		s.writeError(w, http.StatusBadRequest, "org, project and team are required")
		return
	}

	result, err := s.planner.ComputeCapacity(r.Context(), token, req.Org, req.Project, req.Team, req.Iterations)
	if err != nil {
		s.logger.Error("Capacity computation failed", "team", req.Team, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Capacity computation failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleCapacityReport отдает xlsx отчет по capacity команды.
func (s *APIServer) handleCapacityReport(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	q := r.URL.Query()
	org, project, team := q.Get("org"), q.Get("project"), q.Get("team")
	if org == "" || project == "" || team == "" {
		s.writeError(w, http.StatusBadRequest, "org, project and team query parameters are required")
		return
	}

	data, err := s.reports.GenerateCapacityReport(r.Context(), token, org, project, team)
	if err != nil {
		s.logger.Error("Capacity report failed", "team", team, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="capacity.xlsx"`)
	w.Write(data)
}

// handleHistory отдает последние записи аудита.
func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("History fetch failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// trailingID извлекает числовой id из последнего сегмента URL связи
func trailingID(rawURL string) (int, bool) {
	parts := strings.Split(rawURL, "/")
	if len(parts) == 0 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// renderTestSteps рендерит шаги тест-кейса в XML фрагмент поля Steps.
// Нумерация шагов в трекере начинается с 2.
func renderTestSteps(steps []models.TestStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<steps id="0" last="%d">`, len(steps)+1)
	for i, step := range steps {
		fmt.Fprintf(&b,
			`<step id="%d" type="ValidateStep"><parameterizedString isformatted="true">%s</parameterizedString><parameterizedString isformatted="true">%s</parameterizedString><description/></step>`,
			i+2,
			html.EscapeString(step.Action),
			html.EscapeString(step.ExpectedResult))
	}
	b.WriteString("</steps>")
	return b.String()
}
