package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GenerationOpts параметры клиента генеративного API.
type GenerationOpts struct {
	APIKey          string  `yaml:"apiKey" mapstructure:"apiKey" validate:"required"`
	Model           string  `yaml:"model" mapstructure:"model" validate:"required"`
	MaxOutputTokens int32   `yaml:"max_output_tokens" mapstructure:"max_output_tokens" validate:"min=0"`
	Temperature     float32 `yaml:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
}

type GenerationService struct {
	opts   GenerationOpts
	logger *slog.Logger
	client *genai.Client
}

// ErrMalformedOutput генеративный сервис вернул не-JSON там, где шаблон требует JSON.
var ErrMalformedOutput = fmt.Errorf("generation service returned malformed output")

// NewGeneration создает клиент генеративного API с ключом из конфигурации.
func NewGeneration(ctx context.Context, opts GenerationOpts, logger *slog.Logger) (*GenerationService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		logger.Error("Failed to create generation client", "error", err)
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = 4096
	}

	logger.Info("Generation client created", "model", opts.Model)
	return &GenerationService{
		opts:   opts,
		logger: logger,
		client: client,
	}, nil
}

// Complete выполняет один chat completion по инструкции
func (s *GenerationService) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.opts.Model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: s.opts.MaxOutputTokens,
		Temperature:     genai.Ptr(s.opts.Temperature),
	})
	if err != nil {
		s.logger.Error("Generation request failed", "model", s.opts.Model, "error", err)
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from generation service")
	}

	s.logger.Debug("Generation completed", "prompt_len", len(prompt), "output_len", len(text))
	return text, nil
}

// ValidateJSONOutput снимает возможное markdown-обрамление и проверяет,
// что ответ является валидным JSON объектом. Невалидный ответ не
// ретранслируется клиенту.
func ValidateJSONOutput(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return text, nil
}
