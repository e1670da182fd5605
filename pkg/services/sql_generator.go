package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/llm"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	"github.com/ekaya-inc/ekaya-recon/pkg/retry"
	sqlutil "github.com/ekaya-inc/ekaya-recon/pkg/sql"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

const sqlSystemMessage = "You are a SQL expert. Generate accurate SQL queries. " +
	"Return exactly one read-only SELECT statement and nothing else."

// GeneratedSQL is the outcome of one generation.
type GeneratedSQL struct {
	Question         string `json:"question"`
	SQL              string `json:"sql"`
	Model            string `json:"model"`
	Attempts         int    `json:"attempts"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// SQLGenerator turns a natural-language question into one SQL statement.
type SQLGenerator interface {
	Generate(ctx context.Context, question string) (*GeneratedSQL, error)
}

// SQLGeneratorConfig tunes generation.
type SQLGeneratorConfig struct {
	Dialect     string
	Temperature float64
	SampleRows  int
	MaxRetries  int
	RetryDelay  time.Duration
}

type sqlGenerator struct {
	llmClient llm.LLMClient
	mappings  MappingService
	cfg       SQLGeneratorConfig
	logger    *zap.Logger
}

// NewSQLGenerator creates a generator.
func NewSQLGenerator(llmClient llm.LLMClient, mappings MappingService, cfg SQLGeneratorConfig, logger *zap.Logger) SQLGenerator {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 5
	}
	return &sqlGenerator{
		llmClient: llmClient,
		mappings:  mappings,
		cfg:       cfg,
		logger:    logger.Named("sql-generator"),
	}
}

// Generate implements SQLGenerator. Retryable LLM errors are retried a bounded
// number of times with a fixed delay; every failure is a GenerationError.
func (g *sqlGenerator) Generate(ctx context.Context, question string) (*GeneratedSQL, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", apperrors.ErrInvalidInput)
	}

	set, err := g.mappings.Load(ctx)
	if err != nil {
		return nil, err
	}
	prompt := BuildSQLPrompt(question, set.Head(g.cfg.SampleRows), g.cfg.Dialect)

	result, attempts, err := retry.DoWithResult(ctx, retry.Fixed(g.cfg.MaxRetries, g.cfg.RetryDelay),
		func(attempt int) (*llm.GenerateResponseResult, error) {
			if attempt > 0 {
				g.logger.Warn("Retrying SQL generation", zap.Int("attempt", attempt+1))
			}
			return g.llmClient.GenerateResponse(ctx, prompt, sqlSystemMessage, g.cfg.Temperature)
		})
	if err != nil {
		g.logger.Error("SQL generation failed",
			zap.Int("attempts", attempts),
			zap.String("model", g.llmClient.GetModel()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &apperrors.GenerationError{Attempts: attempts, Cause: err}
	}

	cleaned := sqlutil.CleanSQL(result.Content)
	if cleaned == "" || !sqlutil.LooksLikeSQL(cleaned) {
		return nil, &apperrors.GenerationError{Attempts: attempts, Reason: "model returned no SQL"}
	}

	validated := sqlutil.ValidateAndNormalize(cleaned)
	if validated.Error != nil {
		return nil, &apperrors.GenerationError{Attempts: attempts, Reason: "model returned unusable SQL", Cause: validated.Error}
	}

	g.logger.Info("Generated SQL",
		zap.Int("attempts", attempts),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.String("sql", logging.SanitizeQuery(validated.NormalizedSQL)))

	return &GeneratedSQL{
		Question:         question,
		SQL:              validated.NormalizedSQL,
		Model:            g.llmClient.GetModel(),
		Attempts:         attempts,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}, nil
}

// BuildSQLPrompt renders the user prompt: mapping samples, a dialect hint and
// the question.
func BuildSQLPrompt(question string, set *MappingSet, dialect string) string {
	var b strings.Builder
	b.WriteString("Siebel mappings:\n")
	writePromptTable(&b, set.Siebel)
	b.WriteString("Antillia mappings:\n")
	writePromptTable(&b, set.Antillia)
	if dialect != "" {
		fmt.Fprintf(&b, "\nTarget SQL dialect: %s\n", dialect)
	}
	b.WriteString("\nConvert this natural language query into SQL:\n")
	b.WriteString(question)
	return b.String()
}

func writePromptTable(b *strings.Builder, t *table.Table) {
	if t == nil || len(t.Columns) == 0 {
		b.WriteString("(none)\n")
		return
	}
	b.WriteString(strings.Join(t.Columns, " | "))
	b.WriteByte('\n')
	for _, r := range t.Rows {
		vals := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			vals[i] = table.FormatValue(r[c])
		}
		b.WriteString(strings.Join(vals, " | "))
		b.WriteByte('\n')
	}
}

