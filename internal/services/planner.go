package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

// plannedIterations количество спринтов в горизонте планирования.
const plannedIterations = 3

// CountBusinessDays считает будние дни в диапазоне [start, end] включительно.
// Для start > end возвращает 0.
func CountBusinessDays(start, end time.Time) int {
	start = truncateToDay(start)
	end = truncateToDay(end)

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SelectIterations выбирает три целевых спринта в три уровня:
//  1. явно запрошенные пути (точное совпадение или по суффиксу), в порядке запроса;
//  2. спринты с датой окончания не раньше now, отсортированные по дате начала;
//  3. первые три спринта по дате начала, включая прошедшие.
//
// Поздние уровни включаются только когда ранние дали меньше трёх спринтов.
func SelectIterations(iterations []models.Iteration, requested []string, now time.Time) []models.Iteration {
	if len(requested) >= plannedIterations {
		resolved := resolveRequested(iterations, requested)
		if len(resolved) >= plannedIterations {
			return resolved[:plannedIterations]
		}
	}

	upcoming := make([]models.Iteration, 0, len(iterations))
	for _, it := range iterations {
		if it.Attributes.FinishDate != nil && !it.Attributes.FinishDate.Before(truncateToDay(now)) {
			upcoming = append(upcoming, it)
		}
	}
	sortByStartDate(upcoming)
	if len(upcoming) >= plannedIterations {
		return upcoming[:plannedIterations]
	}

	all := make([]models.Iteration, len(iterations))
	copy(all, iterations)
	sortByStartDate(all)
	if len(all) > plannedIterations {
		all = all[:plannedIterations]
	}
	return all
}

// resolveRequested сопоставляет запрошенные пути с известными спринтами
func resolveRequested(iterations []models.Iteration, requested []string) []models.Iteration {
	var resolved []models.Iteration
	for _, path := range requested {
		for _, it := range iterations {
			if it.Path == path || strings.HasSuffix(it.Path, path) {
				resolved = append(resolved, it)
				break
			}
		}
	}
	return resolved
}

func sortByStartDate(iterations []models.Iteration) {
	sort.SliceStable(iterations, func(i, j int) bool {
		a, b := iterations[i].Attributes.StartDate, iterations[j].Attributes.StartDate
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
}

// AggregateCapacity агрегирует capacity спринта по детальным записям.
// Вклад записи = max(0, capacityPerDay × (workDays − daysOff)).
// Если детальная сумма равна нулю — fallback на workDays × teamSize.
func AggregateCapacity(records []models.MemberCapacity, workDays, teamSize int) int {
	total := 0.0
	for _, rec := range records {
		netDays := workDays - rec.DaysOff
		if netDays < 0 {
			netDays = 0
		}
		for _, act := range rec.Activities {
			contribution := act.CapacityPerDay * float64(netDays)
			if contribution > 0 {
				total += contribution
			}
		}
	}

	capacity := int(total)
	if total == 0 {
		capacity = workDays * teamSize
	}
	if capacity < 0 {
		capacity = 0
	}
	return capacity
}

// iterationReader часть трекера, нужная планировщику.
type iterationReader interface {
	GetTeamIterations(ctx context.Context, token, org, project, team string) ([]models.Iteration, error)
	GetIterationCapacities(ctx context.Context, token, org, project, team, iterationID string) ([]models.MemberCapacity, error)
	GetTeamMembers(ctx context.Context, token, org, project, team string) ([]models.TeamMember, error)
}

// PlannerService рассчитывает capacity трёх плановых спринтов команды.
type PlannerService struct {
	tracker iterationReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewPlanner создаёт сервис расчёта capacity.
func NewPlanner(tracker iterationReader, logger *slog.Logger) *PlannerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlannerService{
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// ComputeCapacity выбирает три спринта и считает их capacity.
// Ошибки спринтов и capacities фатальны; недоступный список участников
// деградирует до команды из одного человека.
func (s *PlannerService) ComputeCapacity(ctx context.Context, token, org, project, team string, requested []string) (*models.CapacityResult, error) {
	iterations, err := s.tracker.GetTeamIterations(ctx, token, org, project, team)
	if err != nil {
		return nil, fmt.Errorf("fetch iterations: %w", err)
	}

	selected := SelectIterations(iterations, requested, s.now())
	s.logger.Info("Iterations selected",
		"team", team,
		"known", len(iterations),
		"selected", len(selected))

	teamSize := 1
	members, err := s.tracker.GetTeamMembers(ctx, token, org, project, team)
	if err != nil {
		s.logger.Warn("Failed to fetch team members, assuming team of one", "team", team, "error", err)
	} else if len(members) > 0 {
		teamSize = len(members)
	} else {
		teamSize = 0
	}

	capacities := make([]int, plannedIterations)
	paths := make([]string, 0, len(selected))

	for i, it := range selected {
		paths = append(paths, it.Path)

		workDays := 0
		if it.Attributes.StartDate != nil && it.Attributes.FinishDate != nil {
			workDays = CountBusinessDays(*it.Attributes.StartDate, *it.Attributes.FinishDate)
		}

		records, err := s.tracker.GetIterationCapacities(ctx, token, org, project, team, it.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch capacities for %q: %w", it.Path, err)
		}

		capacities[i] = AggregateCapacity(records, workDays, teamSize)
		s.logger.Debug("Iteration capacity computed",
			"path", it.Path,
			"work_days", workDays,
			"records", len(records),
			"capacity", capacities[i])
	}

	return &models.CapacityResult{
		Capacities: models.CapacityTriple{
			N:  capacities[0],
			N1: capacities[1],
			N2: capacities[2],
		},
		Iterations: paths,
	}, nil
}
