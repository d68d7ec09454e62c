package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/DevN0mad/SprintPilot/internal/services"
)

// Ручная проверка расчёта capacity без поднятия всего приложения.
func main() {
	org := flag.String("org", "", "Организация в трекере")
	project := flag.String("project", "", "Проект")
	team := flag.String("team", "", "Команда")
	baseURL := flag.String("base-url", "https://dev.azure.com", "Базовый URL трекера")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	token := os.Getenv("SPRINTPILOT_TOKEN")
	if token == "" || *org == "" || *project == "" || *team == "" {
		logger.Error("SPRINTPILOT_TOKEN, -org, -project and -team are required")
		os.Exit(1)
	}

	tracker := services.NewAzureDevOps(services.AzureDevOpsOpts{BaseURL: *baseURL}, logger)
	planner := services.NewPlanner(tracker, logger)

	result, err := planner.ComputeCapacity(context.Background(), token, *org, *project, *team, nil)
	if err != nil {
		logger.Error("Failed to compute capacity", "error", err)
		os.Exit(1)
	}

	logger.Info("Capacity computed",
		"n", result.Capacities.N,
		"n1", result.Capacities.N1,
		"n2", result.Capacities.N2,
		"iterations", result.Iterations)
}
