package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/llm"
	"github.com/ekaya-inc/ekaya-recon/pkg/storage"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// newTestMappings writes two small mapping files under a temp FileStore root.
func newTestMappings(t *testing.T) MappingService {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "recon-bucket", "mappings")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siebel_mapping.txt"),
		[]byte("field\tdescription\naccount_id\tSiebel account\nasset_id\tAsset key\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "antillia_mapping.csv"),
		[]byte("field,description\nbilling_account_id,Billing account\n"), 0o644))

	return NewMappingService(
		storage.NewFileStore(root, zap.NewNop()),
		config.MappingsConfig{
			Location:     "recon-bucket/mappings",
			SiebelFile:   "siebel_mapping.txt",
			AntilliaFile: "antillia_mapping.csv",
		},
		config.CacheConfig{TTLSeconds: 60},
		zap.NewNop(),
	)
}

func TestSQLGenerator_Generate(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.Response = "```sql\nSELECT COUNT(*) FROM billing_products;\n```"

	gen := NewSQLGenerator(mock, newTestMappings(t), SQLGeneratorConfig{Dialect: "bigquery", MaxRetries: 3}, zap.NewNop())
	out, err := gen.Generate(context.Background(), "  how many billing products?  ")
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM billing_products", out.SQL)
	assert.Equal(t, "how many billing products?", out.Question)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "mock-model", out.Model)

	assert.Contains(t, mock.LastSystemMessage, "SQL expert")
	assert.Contains(t, mock.LastPrompt, "Siebel mappings:\nfield | description\naccount_id | Siebel account\n")
	assert.Contains(t, mock.LastPrompt, "Antillia mappings:\nfield | description\nbilling_account_id | Billing account\n")
	assert.Contains(t, mock.LastPrompt, "Target SQL dialect: bigquery")
	assert.True(t, strings.HasSuffix(mock.LastPrompt, "Convert this natural language query into SQL:\nhow many billing products?"))
}

func TestSQLGenerator_RetriesAreBounded(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		return nil, llm.NewError(llm.ErrorTypeRateLimit, "slow down", true, nil)
	}

	gen := NewSQLGenerator(mock, newTestMappings(t), SQLGeneratorConfig{MaxRetries: 3}, zap.NewNop())
	_, err := gen.Generate(context.Background(), "total revenue")
	require.Error(t, err)

	var ge *apperrors.GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, 4, ge.Attempts)
	assert.Equal(t, 4, mock.GenerateResponseCalls)
	assert.True(t, errors.Is(err, apperrors.ErrGeneration))
}

func TestSQLGenerator_PermanentErrorNotRetried(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		return nil, llm.NewError(llm.ErrorTypeAuth, "bad key", false, nil)
	}

	gen := NewSQLGenerator(mock, newTestMappings(t), SQLGeneratorConfig{MaxRetries: 3}, zap.NewNop())
	_, err := gen.Generate(context.Background(), "total revenue")
	assert.True(t, errors.Is(err, apperrors.ErrGeneration))
	assert.Equal(t, 1, mock.GenerateResponseCalls)
}

func TestSQLGenerator_SucceedsAfterTransientFailure(t *testing.T) {
	mock := llm.NewMockLLMClient()
	calls := 0
	mock.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		calls++
		if calls == 1 {
			return nil, llm.NewError(llm.ErrorTypeEndpoint, "connection reset", true, nil)
		}
		return &llm.GenerateResponseResult{Content: "SELECT 1"}, nil
	}

	gen := NewSQLGenerator(mock, newTestMappings(t), SQLGeneratorConfig{MaxRetries: 3}, zap.NewNop())
	out, err := gen.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
}

func TestSQLGenerator_RejectsUnusableOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty", "   "},
		{"multiple statements", "SELECT 1; DROP TABLE billing_products"},
		{"prose", "I'm sorry, the mapping files do not describe that data."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockLLMClient()
			mock.Response = tt.response
			gen := NewSQLGenerator(mock, newTestMappings(t), SQLGeneratorConfig{}, zap.NewNop())

			_, err := gen.Generate(context.Background(), "anything")
			assert.True(t, errors.Is(err, apperrors.ErrGeneration))
		})
	}
}

func TestSQLGenerator_EmptyQuestion(t *testing.T) {
	gen := NewSQLGenerator(llm.NewMockLLMClient(), newTestMappings(t), SQLGeneratorConfig{}, zap.NewNop())
	_, err := gen.Generate(context.Background(), " ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSQLGenerator_MissingMappingFile(t *testing.T) {
	svc := NewMappingService(
		storage.NewFileStore(t.TempDir(), zap.NewNop()),
		config.MappingsConfig{Location: "bucket", SiebelFile: "missing.txt", AntilliaFile: "missing.csv"},
		config.CacheConfig{},
		zap.NewNop(),
	)
	gen := NewSQLGenerator(llm.NewMockLLMClient(), svc, SQLGeneratorConfig{}, zap.NewNop())

	_, err := gen.Generate(context.Background(), "anything")
	assert.True(t, errors.Is(err, apperrors.ErrStorageAccess))
}

func TestBuildSQLPrompt_NoMappings(t *testing.T) {
	prompt := BuildSQLPrompt("q", &MappingSet{Siebel: table.New(), Antillia: nil}, "")
	assert.Equal(t, "Siebel mappings:\n(none)\nAntillia mappings:\n(none)\n\nConvert this natural language query into SQL:\nq", prompt)
}

func TestMappingService_HeadAndCache(t *testing.T) {
	svc := newTestMappings(t)
	set, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, set.Siebel.Len())
	assert.Equal(t, 1, set.Head(1).Siebel.Len())

	again, err := svc.LoadFile(context.Background(), "siebel_mapping.txt")
	require.NoError(t, err)
	assert.Same(t, set.Siebel, again)
}

func TestMappingService_ForControl(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "recon-bucket", "mappings")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siebel_mapping.txt"), []byte("field\naccount_id\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "antillia_mapping.csv"), []byte("field\nbilling_account_id\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fiber_antillia.csv"), []byte("field\nproduct_name\nservice_number\n"), 0o644))

	svc := NewMappingService(
		storage.NewFileStore(root, zap.NewNop()),
		config.MappingsConfig{Location: "recon-bucket/mappings", SiebelFile: "siebel_mapping.txt", AntilliaFile: "antillia_mapping.csv"},
		config.CacheConfig{},
		zap.NewNop(),
	)

	set, err := svc.ForControl(context.Background(), config.ProductControl{
		Systems:  []string{"antillia"},
		Mappings: []string{"fiber_antillia.csv"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Siebel.Len(), "siebel keeps the configured file")
	assert.Equal(t, 2, set.Antillia.Len())
	assert.Equal(t, "service_number", set.Antillia.Rows[1]["field"])

	_, err = svc.ForControl(context.Background(), config.ProductControl{
		Systems:  []string{"siebel"},
		Mappings: []string{"missing.txt"},
	})
	assert.True(t, errors.Is(err, apperrors.ErrStorageAccess))
}
