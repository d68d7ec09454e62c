package models

// Имена полей work item в Azure DevOps.
const (
	FieldTitle         = "System.Title"
	FieldDescription   = "System.Description"
	FieldState         = "System.State"
	FieldWorkItemType  = "System.WorkItemType"
	FieldStoryPoints   = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldRemainingWork = "Microsoft.VSTS.Scheduling.RemainingWork"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"
	FieldRisk          = "Microsoft.VSTS.Common.Risk"
	FieldTestSteps     = "Microsoft.VSTS.TCM.Steps"
)

// Типы связей между work item.
const (
	RelHierarchyForward = "System.LinkTypes.Hierarchy-Forward"
	RelHierarchyReverse = "System.LinkTypes.Hierarchy-Reverse"
	RelTestedByReverse  = "Microsoft.VSTS.Common.TestedBy-Reverse"
)

// WorkItem представляет задачу в трекере
type WorkItem struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
	URL       string         `json:"url"`
}

// Relation связь work item с другим work item
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// StringField возвращает строковое поле задачи, пустую строку если его нет.
func (w *WorkItem) StringField(name string) string {
	if v, ok := w.Fields[name].(string); ok {
		return v
	}
	return ""
}

// NumberField возвращает числовое поле задачи, 0 если его нет.
func (w *WorkItem) NumberField(name string) float64 {
	switch v := w.Fields[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// WorkItemBatchResponse представляет ответ API на batch-запрос задач
type WorkItemBatchResponse struct {
	Count int        `json:"count"`
	Value []WorkItem `json:"value"`
}

// PatchOp одна операция JSON-Patch документа.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// PatchDocument упорядоченный список операций для создания/обновления задачи.
type PatchDocument []PatchOp

// AddField добавляет операцию add для поля задачи.
func (d PatchDocument) AddField(name string, value any) PatchDocument {
	return append(d, PatchOp{Op: "add", Path: "/fields/" + name, Value: value})
}

// ReplaceField добавляет операцию replace для поля задачи.
func (d PatchDocument) ReplaceField(name string, value any) PatchDocument {
	return append(d, PatchOp{Op: "replace", Path: "/fields/" + name, Value: value})
}

// AddRelation добавляет связь с другим work item.
func (d PatchDocument) AddRelation(rel, url string) PatchDocument {
	return append(d, PatchOp{
		Op:   "add",
		Path: "/relations/-",
		Value: Relation{
			Rel: rel,
			URL: url,
		},
	})
}
