package services

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramOpts параметры необходимые для инициализации сервиса TelegramBotService.
type TelegramOpts struct {
	Token  string `yaml:"token" mapstructure:"token" validate:"required"`
	ChatID int64  `yaml:"chat_id" mapstructure:"chat_id" validate:"required"`
}

// TelegramBotService сервис предназначенный для взаимодействия с telegram.
type TelegramBotService struct {
	opts   TelegramOpts
	logger *slog.Logger
	bot    *tgbotapi.BotAPI
}

// NewTelegramBot создает экземпляр сервиса для работы с telegram ботом.
func NewTelegramBot(opts TelegramOpts, logger *slog.Logger) (*TelegramBotService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	if opts.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	bot, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		logger.Error("Failed to create Telegram bot", "error", err)
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	logger.Info("Telegram bot created successfully",
		"bot_user", bot.Self.UserName,
		"chat_id", opts.ChatID,
	)
	return &TelegramBotService{
		opts:   opts,
		logger: logger,
		bot:    bot,
	}, nil
}

// SendMessage отправляет текстовое сообщение в telegram чат.
func (s *TelegramBotService) SendMessage(ctx context.Context, text string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := tgbotapi.NewMessage(s.opts.ChatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Failed to send message", "chat_id", s.opts.ChatID, "error", err)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Message sent successfully", "chat_id", s.opts.ChatID)
	return nil
}

// SendDocument отправляет файл из памяти в telegram чат.
func (s *TelegramBotService) SendDocument(ctx context.Context, name string, data []byte, caption string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(data) == 0 {
		return fmt.Errorf("document %q is empty", name)
	}

	msg := tgbotapi.NewDocument(s.opts.ChatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	msg.Caption = caption

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Failed to send document",
			"name", name,
			"chat_id", s.opts.ChatID,
			"error", err)
		return fmt.Errorf("send document: %w", err)
	}

	s.logger.Info("Document sent successfully",
		"name", name,
		"chat_id", s.opts.ChatID)
	return nil
}
