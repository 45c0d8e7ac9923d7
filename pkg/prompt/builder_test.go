package prompt

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/harun/warden/pkg/datasource"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) RecentAnomalies(ctx context.Context) (datasource.Document, error) {
	args := m.Called(ctx)
	doc, _ := args.Get(0).(datasource.Document)
	return doc, args.Error(1)
}

func (m *mockSource) OpenWorkItems(ctx context.Context) (datasource.Document, error) {
	args := m.Called(ctx)
	doc, _ := args.Get(0).(datasource.Document)
	return doc, args.Error(1)
}

func (m *mockSource) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestBuilder_FraudAnalysis(t *testing.T) {
	src := &mockSource{}
	src.On("RecentAnomalies", mock.Anything).Return(datasource.Document(`[{"driver":"d7"}]`), nil)

	b, err := NewBuilder(src, nil, testLogger())
	require.NoError(t, err)

	p := b.Build(context.Background(), "fraud_analysis")
	assert.Contains(t, p, "fraud signals")
	assert.Contains(t, p, `"driver": "d7"`)
	src.AssertExpectations(t)
	src.AssertNotCalled(t, "OpenWorkItems", mock.Anything)
}

func TestBuilder_CalculationValidation(t *testing.T) {
	t.Run("unavailable renders no data", func(t *testing.T) {
		src := &mockSource{}
		src.On("OpenWorkItems", mock.Anything).Return(nil, datasource.ErrUnavailable)

		b, err := NewBuilder(src, nil, testLogger())
		require.NoError(t, err)

		p := b.Build(context.Background(), "calculation_validation")
		assert.Contains(t, p, NoData)
		assert.Contains(t, p, "open shifts")
	})

	t.Run("empty list renders as document", func(t *testing.T) {
		src := &mockSource{}
		src.On("OpenWorkItems", mock.Anything).Return(datasource.Document(`[]`), nil)

		b, err := NewBuilder(src, nil, testLogger())
		require.NoError(t, err)

		p := b.Build(context.Background(), "calculation_validation")
		assert.Contains(t, p, "[]")
		assert.NotContains(t, p, NoData)
	})

	t.Run("other error renders no data", func(t *testing.T) {
		src := &mockSource{}
		src.On("OpenWorkItems", mock.Anything).Return(nil, errors.New("boom"))

		b, err := NewBuilder(src, nil, testLogger())
		require.NoError(t, err)
		assert.Contains(t, b.Build(context.Background(), "calculation_validation"), NoData)
	})
}

func TestBuilder_UnknownNameUsesGeneric(t *testing.T) {
	src := &mockSource{}
	b, err := NewBuilder(src, nil, testLogger())
	require.NoError(t, err)

	p := b.Build(context.Background(), "daily_report")
	assert.Equal(t, "Scheduled task: daily_report. Please produce an execution and validation checklist for this routine.", p)
	src.AssertNotCalled(t, "RecentAnomalies", mock.Anything)
	src.AssertNotCalled(t, "OpenWorkItems", mock.Anything)
}

func TestBuilder_NilSource(t *testing.T) {
	b, err := NewBuilder(nil, nil, testLogger())
	require.NoError(t, err)
	assert.Contains(t, b.Build(context.Background(), "fraud_analysis"), NoData)
}

func TestBuilder_Overrides(t *testing.T) {
	src := &mockSource{}
	src.On("RecentAnomalies", mock.Anything).Return(datasource.Document(`{"count":2}`), nil)

	b, err := NewBuilder(src, map[string]Definition{
		"fraud_analysis": {Context: ContextAnomalies, Template: "Custom {{.Name}}: {{.Context}}"},
		"daily_report":   {Template: "Summarise the day."},
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "Custom fraud_analysis: {\n  \"count\": 2\n}", b.Build(context.Background(), "fraud_analysis"))
	assert.Equal(t, "Summarise the day.", b.Build(context.Background(), "daily_report"))
	assert.ElementsMatch(t, []string{"fraud_analysis", "calculation_validation", "daily_report"}, b.Names())
}

func TestNewBuilder_Errors(t *testing.T) {
	t.Run("bad template", func(t *testing.T) {
		_, err := NewBuilder(nil, map[string]Definition{"x": {Template: "{{.Name"}}, testLogger())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse prompt template")
	})

	t.Run("unknown context", func(t *testing.T) {
		_, err := NewBuilder(nil, map[string]Definition{"x": {Context: "weather", Template: "hi"}}, testLogger())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown context")
	})
}

func TestBuilder_PortugueseTaskNames(t *testing.T) {
	src := &mockSource{}
	src.On("RecentAnomalies", mock.Anything).Return(datasource.Document(`[]`), nil)
	src.On("OpenWorkItems", mock.Anything).Return(datasource.Document(`{"open":2}`), nil)

	b, err := NewBuilder(src, nil, testLogger())
	require.NoError(t, err)

	assert.Contains(t, b.Build(context.Background(), "analise_fraude"), "fraud signals")
	assert.Contains(t, b.Build(context.Background(), "validacao_calculos"), "open shifts")
	src.AssertExpectations(t)

	t.Run("configured alias wins", func(t *testing.T) {
		b, err := NewBuilder(nil, map[string]Definition{
			"analise_fraude": {Template: "custom {{.Name}}"},
		}, testLogger())
		require.NoError(t, err)
		assert.Equal(t, "custom analise_fraude", b.Build(context.Background(), "analise_fraude"))
	})
}
