package models

// AnalyzeRequest тело запроса POST /api/analyze
type AnalyzeRequest struct {
	Title       string          `json:"title"`
	Action      string          `json:"action"`
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Capacities  *CapacityTriple `json:"capacities,omitempty"`
	Iterations  []string        `json:"iterations,omitempty"`
	Items       []SprintItem    `json:"items,omitempty"`
}

// SprintItem кандидат на распределение по спринтам
type SprintItem struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Points float64 `json:"points"`
}

// AnalyzeResponse тело ответа POST /api/analyze
type AnalyzeResponse struct {
	Output string `json:"output"`
}

// StorySummary краткое описание user story для клиента
type StorySummary struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StoryPoints float64 `json:"storyPoints"`
	State       string  `json:"state"`
}

// FeatureStoriesResponse ответ GET /api/feature-stories
type FeatureStoriesResponse struct {
	Stories []StorySummary `json:"stories"`
}

// TaskInput описание создаваемой задачи
type TaskInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Estimate    float64 `json:"estimate,omitempty"`
}

// CreateTasksRequest тело запроса POST /api/create-tasks
type CreateTasksRequest struct {
	Org         string      `json:"org"`
	Project     string      `json:"project"`
	UserStoryID int         `json:"userStoryId"`
	Tasks       []TaskInput `json:"tasks"`
}

// TestStep один шаг тест-кейса: действие и ожидаемый результат.
type TestStep struct {
	Action         string `json:"action"`
	ExpectedResult string `json:"expectedResult"`
}

// TestCaseInput описание создаваемого тест-кейса
type TestCaseInput struct {
	Title string     `json:"title"`
	Steps []TestStep `json:"steps"`
}

// CreateTestCasesRequest тело запроса POST /api/create-testcases
type CreateTestCasesRequest struct {
	Org         string          `json:"org"`
	Project     string          `json:"project"`
	UserStoryID int             `json:"userStoryId"`
	TestCases   []TestCaseInput `json:"testCases"`
}

// StoryInput описание создаваемой user story
type StoryInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	StoryPoints float64 `json:"storyPoints,omitempty"`
	Priority    int     `json:"priority,omitempty"`
	Risk        string  `json:"risk,omitempty"`
	DependsOn   string  `json:"dependsOn,omitempty"`
}

// CreateStoriesRequest тело запроса POST /api/create-stories
type CreateStoriesRequest struct {
	Org       string       `json:"org"`
	Project   string       `json:"project"`
	FeatureID int          `json:"featureId"`
	Stories   []StoryInput `json:"stories"`
}

// StoryUpdate изменение существующей user story
type StoryUpdate struct {
	ID          int      `json:"id"`
	Title       string   `json:"title,omitempty"`
	StoryPoints *float64 `json:"storyPoints,omitempty"`
}

// UpdateStoriesRequest тело запроса POST /api/update-stories
type UpdateStoriesRequest struct {
	Org     string        `json:"org"`
	Project string        `json:"project"`
	Stories []StoryUpdate `json:"stories"`
}

// ComputeCapacityRequest тело запроса POST /api/compute-capacity
type ComputeCapacityRequest struct {
	Org        string   `json:"org"`
	Project    string   `json:"project"`
	Team       string   `json:"team"`
	Iterations []string `json:"iterations,omitempty"`
}
