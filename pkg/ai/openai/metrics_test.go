package openai

import (
	"sync"
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/ai"
)

func TestMetricsAccumulateAndReset(t *testing.T) {
	client := &GraphOpenAIClient{}

	client.modifyMetrics(ai.ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 1000})
	client.modifyMetrics(ai.ModelMetrics{InputTokens: 2, OutputTokens: 3, TotalTokens: 5, DurationMs: 1000})

	m := client.GetMetrics()
	if m.InputTokens != 12 || m.OutputTokens != 8 || m.TotalTokens != 20 {
		t.Fatalf("unexpected accumulated metrics: %+v", m)
	}

	client.ResetMetrics()
	if m := client.GetMetrics(); m.TotalTokens != 0 || m.DurationMs != 0 {
		t.Fatalf("expected zeroed metrics after reset, got %+v", m)
	}
}

func TestGetMetricsConcurrentWithWrites(t *testing.T) {
	client := &GraphOpenAIClient{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				client.modifyMetrics(ai.ModelMetrics{TotalTokens: 1, DurationMs: 1})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = client.GetMetrics()
			}
		}()
	}
	wg.Wait()

	if m := client.GetMetrics(); m.TotalTokens != 800 {
		t.Fatalf("expected 800 total tokens, got %d", m.TotalTokens)
	}
}
