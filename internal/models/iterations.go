package models

import "time"

// Iteration представляет спринт команды
type Iteration struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Attributes IterationAttributes `json:"attributes"`
}

// IterationAttributes календарные границы спринта (включительно)
type IterationAttributes struct {
	StartDate  *time.Time `json:"startDate"`
	FinishDate *time.Time `json:"finishDate"`
	TimeFrame  string     `json:"timeFrame,omitempty"`
}

// IterationsResponse представляет ответ API со списком спринтов
type IterationsResponse struct {
	Count int         `json:"count"`
	Value []Iteration `json:"value"`
}

// MemberCapacity детальная запись capacity участника команды в спринте
type MemberCapacity struct {
	TeamMember TeamMember `json:"teamMember"`
	Activities []Activity `json:"activities"`
	DaysOff    int        `json:"daysOff"`
}

// Activity вклад участника по виду деятельности
type Activity struct {
	Name           string  `json:"name"`
	CapacityPerDay float64 `json:"capacityPerDay"`
}

// TeamMember участник команды
type TeamMember struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName,omitempty"`
}

// CapacitiesResponse представляет ответ API с capacity спринта
type CapacitiesResponse struct {
	Count int              `json:"count"`
	Value []MemberCapacity `json:"value"`
}

// TeamMembersResponse представляет ответ API со списком участников команды
type TeamMembersResponse struct {
	Count int          `json:"count"`
	Value []TeamMember `json:"value"`
}

// CapacityTriple capacity трёх плановых спринтов: текущий, следующий, через один.
type CapacityTriple struct {
	N  int `json:"n"`
	N1 int `json:"n1"`
	N2 int `json:"n2"`
}

// CapacityResult результат расчёта capacity по трём спринтам
type CapacityResult struct {
	Capacities CapacityTriple `json:"capacities"`
	Iterations []string       `json:"iterations"`
}
