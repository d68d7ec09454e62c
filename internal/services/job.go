package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DailyJobOpts параметры необходимые для работы сервиса.
type DailyJobOpts struct {
	Org     string `yaml:"org" mapstructure:"org" validate:"required"`
	Project string `yaml:"project" mapstructure:"project" validate:"required"`
	Team    string `yaml:"team" mapstructure:"team" validate:"required"`
	// Токен сервисного аккаунта только для фоновой рассылки,
	// HTTP маршруты работают исключительно с токеном вызывающего.
	Token  string `yaml:"token" mapstructure:"token" validate:"required"`
	Hour   int    `yaml:"hour" mapstructure:"hour" validate:"min=0,max=23"`
	Minute int    `yaml:"minute" mapstructure:"minute" validate:"min=0,max=59"`
}

// DailyJobService отправляет capacity дайджест каждый день в заданное время.
type DailyJobService struct {
	botServ   *TelegramBotService
	planner   *PlannerService
	reportSrv *ReportService
	opts      DailyJobOpts
	timezone  *time.Location
	logger    *slog.Logger
}

// NewDailyJobService создаёт сервис ежедневной рассылки дайджеста.
func NewDailyJobService(
	botServ *TelegramBotService,
	planner *PlannerService,
	reportSrv *ReportService,
	opts DailyJobOpts,
	logger *slog.Logger,
) (*DailyJobService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if botServ == nil {
		return nil, fmt.Errorf("bot service is required")
	}

	if planner == nil || reportSrv == nil {
		return nil, fmt.Errorf("planner and report services are required")
	}

	logger.Info("Daily digest configured",
		"hour", opts.Hour,
		"minute", opts.Minute,
		"timezone", time.Local.String(),
		"team", opts.Team)

	return &DailyJobService{
		botServ:   botServ,
		planner:   planner,
		reportSrv: reportSrv,
		opts:      opts,
		timezone:  time.Local,
		logger:    logger,
	}, nil
}

// Start запускает цикл рассылки.
func (d *DailyJobService) Start(ctx context.Context) {
	nextRun := d.nextRunTime()
	timer := time.NewTimer(time.Until(nextRun))
	d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutdown requested")
			timer.Stop()
			return
		case <-timer.C:
			if err := d.sendDigest(ctx); err != nil {
				d.logger.Error("Daily digest sending failed", "error", err)
			} else {
				d.logger.Info("Daily digest sent successfully")
			}

			nextRun = d.nextRunTime()
			timer.Reset(time.Until(nextRun))
			d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))
		}
	}
}

// sendDigest считает capacity, формирует текст и отправляет отчет с файлом
func (d *DailyJobService) sendDigest(ctx context.Context) error {
	result, err := d.planner.ComputeCapacity(ctx, d.opts.Token, d.opts.Org, d.opts.Project, d.opts.Team, nil)
	if err != nil {
		return fmt.Errorf("compute capacity: %w", err)
	}

	text := fmt.Sprintf(
		"Capacity digest for %s\nCurrent: %d\nNext: %d\nNext+1: %d",
		d.opts.Team, result.Capacities.N, result.Capacities.N1, result.Capacities.N2)

	report, err := d.reportSrv.GenerateCapacityReport(ctx, d.opts.Token, d.opts.Org, d.opts.Project, d.opts.Team)
	if err != nil {
		// Текст важнее файла, дайджест уходит и без отчета.
		d.logger.Error("Report generation failed, sending text only", "error", err)
		return d.botServ.SendMessage(ctx, text)
	}

	name := fmt.Sprintf("capacity_%s.xlsx", time.Now().In(d.timezone).Format("2006-01-02"))
	return d.botServ.SendDocument(ctx, name, report, text)
}

// nextRunTime вычисляет ближайшее время
func (d *DailyJobService) nextRunTime() time.Time {
	now := time.Now().In(d.timezone)
	today := time.Date(now.Year(), now.Month(), now.Day(), d.opts.Hour, d.opts.Minute, 0, 0, d.timezone)

	if now.After(today) {
		return today.Add(24 * time.Hour)
	}
	return today
}
