package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

type stubGenerator struct {
	output string
	err    error
	prompt string
}

func (g *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.output, g.err
}

type stubWorkItems struct {
	item      *models.WorkItem
	itemErr   error
	batch     []models.WorkItem
	batchErr  error
	nextID    int
	failAfter int // creates succeed this many times, then fail; 0 means never fail
	created   []models.PatchDocument
	updated   []int
	updateErr error
}

func (c *stubWorkItems) GetWorkItem(ctx context.Context, token, org, project string, id int) (*models.WorkItem, error) {
	return c.item, c.itemErr
}

func (c *stubWorkItems) GetWorkItemsBatch(ctx context.Context, token, org, project string, ids []int, fields []string) ([]models.WorkItem, error) {
	return c.batch, c.batchErr
}

func (c *stubWorkItems) CreateWorkItem(ctx context.Context, token, org, project, itemType string, patch models.PatchDocument) (*models.WorkItem, error) {
	if c.failAfter > 0 && len(c.created) >= c.failAfter {
		return nil, fmt.Errorf("create rejected")
	}
	c.created = append(c.created, patch)
	c.nextID++
	return &models.WorkItem{ID: c.nextID}, nil
}

func (c *stubWorkItems) UpdateWorkItem(ctx context.Context, token, org, project string, id int, patch models.PatchDocument) (*models.WorkItem, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.updated = append(c.updated, id)
	return &models.WorkItem{ID: id}, nil
}

func (c *stubWorkItems) WorkItemURL(org, project string, id int) string {
	return fmt.Sprintf("https://dev.azure.com/%s/%s/_apis/wit/workItems/%d", org, project, id)
}

type stubPlanner struct {
	result *models.CapacityResult
	err    error
}

func (p *stubPlanner) ComputeCapacity(ctx context.Context, token, org, project, team string, requested []string) (*models.CapacityResult, error) {
	return p.result, p.err
}

type stubReports struct {
	data []byte
	err  error
}

func (r *stubReports) GenerateCapacityReport(ctx context.Context, token, org, project, team string) ([]byte, error) {
	return r.data, r.err
}

type env struct {
	srv       *httptest.Server
	generator *stubGenerator
	tracker   *stubWorkItems
	planner   *stubPlanner
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		generator: &stubGenerator{},
		tracker:   &stubWorkItems{},
		planner:   &stubPlanner{},
	}

	api := NewAPIServer(
		slog.New(slog.DiscardHandler),
		e.tracker,
		e.generator,
		e.planner,
		&stubReports{data: []byte("xlsx")},
		nil,
		&APIServerOpts{Address: "127.0.0.1:0"},
	)

	mux := http.NewServeMux()
	api.Register(mux)

	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, authorized bool) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if authorized {
		req.Header.Set("Authorization", "Bearer test-token")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Title: "x", Action: "bug"}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["error"])

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/analyze", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestHealthRequiresNoAuth(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/healthz", nil, false)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnalyze(t *testing.T) {
	t.Run("plain text action relays output", func(t *testing.T) {
		e := newEnv(t)
		e.generator.output = "A user can log in."

		resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{
			Title:  "Add login",
			Action: "description",
			Type:   "User Story",
		}, true)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "A user can log in.", body["output"])
		assert.Contains(t, e.generator.prompt, "Add login")
	})

	t.Run("missing title is a client error", func(t *testing.T) {
		e := newEnv(t)

		resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Action: "bug"}, true)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("generation failure maps to 500", func(t *testing.T) {
		e := newEnv(t)
		e.generator.err = fmt.Errorf("quota exceeded")

		resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Title: "x", Action: "bug"}, true)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Analysis failed", body["error"])
	})

	t.Run("JSON action validates output before relay", func(t *testing.T) {
		e := newEnv(t)
		e.generator.output = "```json\n{\"stories\": []}\n```"

		resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Title: "x", Action: "stories"}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, `{"stories": []}`, body["output"])
	})

	t.Run("malformed JSON output fails closed", func(t *testing.T) {
		e := newEnv(t)
		e.generator.output = "Sure, here are your stories!"

		resp := e.do(t, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Title: "x", Action: "stories"}, true)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "generation service returned malformed output", body["error"])
	})
}

func TestFeatureStories(t *testing.T) {
	e := newEnv(t)
	e.tracker.item = &models.WorkItem{
		ID: 42,
		Relations: []models.Relation{
			{Rel: models.RelHierarchyForward, URL: "https://dev.azure.com/o/p/_apis/wit/workItems/101"},
			{Rel: models.RelHierarchyReverse, URL: "https://dev.azure.com/o/p/_apis/wit/workItems/7"},
			{Rel: models.RelHierarchyForward, URL: "https://dev.azure.com/o/p/_apis/wit/workItems/102"},
		},
	}
	e.tracker.batch = []models.WorkItem{
		{ID: 101, Fields: map[string]any{
			models.FieldTitle:       "Story one",
			models.FieldStoryPoints: 5.0,
			models.FieldState:       "New",
		}},
		{ID: 102, Fields: map[string]any{
			models.FieldTitle: "Story two",
		}},
	}

	resp := e.do(t, http.MethodGet, "/api/feature-stories/org/proj/42", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var body models.FeatureStoriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Stories, 2)
	assert.Equal(t, "Story one", body.Stories[0].Title)
	assert.Equal(t, 5.0, body.Stories[0].StoryPoints)
	assert.Equal(t, 102, body.Stories[1].ID)
}

func TestFeatureStoriesNoChildren(t *testing.T) {
	e := newEnv(t)
	e.tracker.item = &models.WorkItem{ID: 42}

	resp := e.do(t, http.MethodGet, "/api/feature-stories/org/proj/42", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Empty(t, body["stories"])
}

func TestCreateTasks(t *testing.T) {
	t.Run("all creates succeed", func(t *testing.T) {
		e := newEnv(t)
		e.tracker.nextID = 100

		resp := e.do(t, http.MethodPost, "/api/create-tasks", models.CreateTasksRequest{
			Org:         "org",
			Project:     "proj",
			UserStoryID: 55,
			Tasks: []models.TaskInput{
				{Title: "Implement API", Estimate: 4},
				{Title: "Write tests"},
			},
		}, true)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, []any{101.0, 102.0}, body["createdTasks"])

		// Каждая задача линкуется на родительскую story.
		require.Len(t, e.tracker.created, 2)
		last := e.tracker.created[1]
		assert.Equal(t, "/relations/-", last[len(last)-1].Path)
	})

	t.Run("partial failure reports created ids", func(t *testing.T) {
		e := newEnv(t)
		e.tracker.nextID = 100
		e.tracker.failAfter = 1

		resp := e.do(t, http.MethodPost, "/api/create-tasks", models.CreateTasksRequest{
			Org:         "org",
			Project:     "proj",
			UserStoryID: 55,
			Tasks: []models.TaskInput{
				{Title: "First"},
				{Title: "Second"},
			},
		}, true)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Task creation failed", body["error"])
		assert.Equal(t, []any{101.0}, body["createdTasks"])
		assert.Len(t, e.tracker.created, 1)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		e := newEnv(t)

		resp := e.do(t, http.MethodPost, "/api/create-tasks", models.CreateTasksRequest{Org: "org"}, true)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, e.tracker.created)
	})
}

func TestCreateTestCases(t *testing.T) {
	e := newEnv(t)
	e.tracker.nextID = 200

	resp := e.do(t, http.MethodPost, "/api/create-testcases", models.CreateTestCasesRequest{
		Org:         "org",
		Project:     "proj",
		UserStoryID: 55,
		TestCases: []models.TestCaseInput{
			{
				Title: "Login works",
				Steps: []models.TestStep{
					{Action: "Open <login> page", ExpectedResult: "Form is shown"},
					{Action: "Submit credentials", ExpectedResult: "User is signed in"},
				},
			},
		},
	}, true)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, []any{201.0}, body["createdTestCases"])

	require.Len(t, e.tracker.created, 1)
	patch := e.tracker.created[0]
	var stepsXML string
	for _, op := range patch {
		if op.Path == "/fields/"+models.FieldTestSteps {
			stepsXML = op.Value.(string)
		}
	}
	require.NotEmpty(t, stepsXML)
	assert.Contains(t, stepsXML, `last="3"`)
	assert.Contains(t, stepsXML, "Open &lt;login&gt; page")
	assert.Contains(t, stepsXML, "User is signed in")
}

func TestCreateStories(t *testing.T) {
	e := newEnv(t)
	e.tracker.nextID = 300

	resp := e.do(t, http.MethodPost, "/api/create-stories", models.CreateStoriesRequest{
		Org:       "org",
		Project:   "proj",
		FeatureID: 42,
		Stories: []models.StoryInput{
			{Title: "Story A", StoryPoints: 5, Priority: 2, Risk: "Medium"},
		},
	}, true)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, []any{301.0}, body["createdStories"])

	require.Len(t, e.tracker.created, 1)
	fields := map[string]any{}
	for _, op := range e.tracker.created[0] {
		fields[op.Path] = op.Value
	}
	assert.Equal(t, "Medium", fields["/fields/"+models.FieldRisk])
	assert.Equal(t, 5.0, fields["/fields/"+models.FieldStoryPoints])
}

func TestUpdateStories(t *testing.T) {
	t.Run("patches title and points", func(t *testing.T) {
		e := newEnv(t)
		points := 8.0

		resp := e.do(t, http.MethodPost, "/api/update-stories", models.UpdateStoriesRequest{
			Org:     "org",
			Project: "proj",
			Stories: []models.StoryUpdate{
				{ID: 301, Title: "Renamed"},
				{ID: 302, StoryPoints: &points},
			},
		}, true)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, []any{301.0, 302.0}, body["updatedStories"])
		assert.Equal(t, []int{301, 302}, e.tracker.updated)
	})

	t.Run("downstream failure reports updated ids", func(t *testing.T) {
		e := newEnv(t)
		e.tracker.updateErr = fmt.Errorf("conflict")

		resp := e.do(t, http.MethodPost, "/api/update-stories", models.UpdateStoriesRequest{
			Org:     "org",
			Project: "proj",
			Stories: []models.StoryUpdate{{ID: 301, Title: "x"}},
		}, true)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Story update failed", body["error"])
	})
}

func TestComputeCapacity(t *testing.T) {
	e := newEnv(t)
	e.planner.result = &models.CapacityResult{
		Capacities: models.CapacityTriple{N: 18, N1: 40, N2: 40},
		Iterations: []string{`P\S1`, `P\S2`, `P\S3`},
	}

	resp := e.do(t, http.MethodPost, "/api/compute-capacity", models.ComputeCapacityRequest{
		Org:     "org",
		Project: "proj",
		Team:    "team",
	}, true)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var result models.CapacityResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 18, result.Capacities.N)
	assert.Len(t, result.Iterations, 3)
}

func TestCapacityReport(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/capacity-report?org=o&project=p&team=t", nil, true)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	missing := e.do(t, http.MethodGet, "/api/capacity-report?org=o", nil, true)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func TestRenderTestSteps(t *testing.T) {
	xml := renderTestSteps([]models.TestStep{
		{Action: "Do a thing", ExpectedResult: "It happened"},
	})
	assert.Equal(t,
		`<steps id="0" last="2"><step id="2" type="ValidateStep"><parameterizedString isformatted="true">Do a thing</parameterizedString><parameterizedString isformatted="true">It happened</parameterizedString><description/></step></steps>`,
		xml)
}

func TestTrailingID(t *testing.T) {
	id, ok := trailingID("https://dev.azure.com/o/p/_apis/wit/workItems/77")
	require.True(t, ok)
	assert.Equal(t, 77, id)

	_, ok = trailingID("https://dev.azure.com/o/p/_apis/wit/workItems/abc")
	assert.False(t, ok)
}
