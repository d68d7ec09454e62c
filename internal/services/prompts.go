package services

import (
	"fmt"
	"strings"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

// Действия, которые клиент может запросить у /api/analyze.
const (
	ActionDescription = "description"
	ActionCriteria    = "criteria"
	ActionTests       = "tests"
	ActionTestCases   = "testcases"
	ActionBug         = "bug"
	ActionStories     = "stories"
	ActionTasks       = "tasks"
	ActionSprintPlan  = "sprintplan"
)

const descriptionPrompt = `You are an experienced product owner. Write a professional, concise description for a %s titled "%s". Describe the goal, the user value and the expected behavior. Respond with plain text only, no markdown.`

const criteriaPrompt = `You are an experienced product owner. Write acceptance criteria for the work item titled "%s". Return each criterion on its own line, formatted as a discrete verifiable statement. No numbering, no markdown, plain lines of text only.`

const testCasesPrompt = `You are an experienced QA engineer. Design test cases for the work item titled "%s".%s

Respond ONLY with valid JSON, no markdown fencing, using exactly this structure:
{
  "testCases": [
    {
      "title": "Test case title",
      "steps": [
        {"action": "what the tester does", "expectedResult": "what must happen"}
      ]
    }
  ]
}
Steps must be ordered. Field names exactly as specified.`

const bugPrompt = `You are an experienced software engineer. Write a short professional summary of the following bug report, keeping every technically relevant detail:

%s

Respond with plain text only.`

const storiesPrompt = `You are an experienced agile coach. Break the %s titled "%s" into independent, estimable user stories.%s

Rules:
- each story must be deliverable on its own and estimable at 10 story points or less
- priority is an integer from 1 (highest) to 4 (lowest)
- risk is one of "High", "Medium", "Low"
- rank orders the stories by implementation sequence, starting at 1
- dependency names the title of another story in this set, or ""

Respond ONLY with valid JSON, no markdown fencing, using exactly this structure:
{
  "stories": [
    {
      "title": "Story title",
      "description": "As a <user>, I want <goal> so that <benefit>",
      "storyPoints": 5,
      "priority": 2,
      "risk": "Medium",
      "rank": 1,
      "dependsOn": ""
    }
  ]
}`

const tasksPrompt = `You are an experienced technical lead. Break the user story titled "%s" into implementation tasks.%s

Respond ONLY with valid JSON, no markdown fencing, using exactly this structure:
{
  "tasks": [
    {
      "title": "Task title",
      "description": "What has to be done and how to verify it",
      "estimate": 4
    }
  ]
}
The estimate is in hours. Field names exactly as specified.`

const sprintPlanPrompt = `You are an experienced scrum master planning three sprints.

Sprints and their capacities in story points:
%s

Backlog, already ordered by rank (id, title, points):
%s

Allocate the backlog items to the sprints in the given order. Do not reorder items, do not split an item between sprints. An item goes into the earliest sprint whose remaining capacity fits its points; once an item does not fit the current sprint, continue with the next sprint. Items that fit no sprint go to "unallocated".

Respond ONLY with valid JSON, no markdown fencing, using exactly this structure:
{
  "sprints": [
    {"iteration": "sprint path", "items": [1, 2], "totalPoints": 8}
  ],
  "unallocated": [3]
}
Field names exactly as specified.`

// BuildPrompt выбирает шаблон инструкции по действию и заполняет его
// полями запроса. Неизвестное действие возвращает title как есть.
func BuildPrompt(req models.AnalyzeRequest) string {
	itemType := req.Type
	if itemType == "" {
		itemType = "work item"
	}

	switch req.Action {
	case ActionDescription:
		return fmt.Sprintf(descriptionPrompt, itemType, req.Title)
	case ActionCriteria:
		return fmt.Sprintf(criteriaPrompt, req.Title)
	case ActionTests, ActionTestCases:
		return fmt.Sprintf(testCasesPrompt, req.Title, contextBlock(req.Description))
	case ActionBug:
		return fmt.Sprintf(bugPrompt, req.Description)
	case ActionStories:
		return fmt.Sprintf(storiesPrompt, itemType, req.Title, contextBlock(req.Description))
	case ActionTasks:
		return fmt.Sprintf(tasksPrompt, req.Title, contextBlock(req.Description))
	case ActionSprintPlan:
		return fmt.Sprintf(sprintPlanPrompt, sprintLines(req), itemLines(req.Items))
	default:
		// Неизвестное действие деградирует до голого title, клиент на это полагается.
		return req.Title
	}
}

// IsJSONAction сообщает, требует ли шаблон действия строго JSON ответ.
func IsJSONAction(action string) bool {
	switch action {
	case ActionTests, ActionTestCases, ActionStories, ActionTasks, ActionSprintPlan:
		return true
	}
	return false
}

func contextBlock(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	return "\n\nContext:\n" + description
}

// sprintLines описывает три спринта и их capacity для sprintplan шаблона
func sprintLines(req models.AnalyzeRequest) string {
	caps := models.CapacityTriple{}
	if req.Capacities != nil {
		caps = *req.Capacities
	}

	names := make([]string, plannedIterations)
	for i := range names {
		if i < len(req.Iterations) {
			names[i] = req.Iterations[i]
		} else {
			names[i] = fmt.Sprintf("Sprint %d", i+1)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "1. %s: capacity %d\n", names[0], caps.N)
	fmt.Fprintf(&b, "2. %s: capacity %d\n", names[1], caps.N1)
	fmt.Fprintf(&b, "3. %s: capacity %d", names[2], caps.N2)
	return b.String()
}

// itemLines перечисляет элементы бэклога в исходном порядке
func itemLines(items []models.SprintItem) string {
	if len(items) == 0 {
		return "(empty backlog)"
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- id %d, %q, %g points", item.ID, item.Title, item.Points)
	}
	return b.String()
}
