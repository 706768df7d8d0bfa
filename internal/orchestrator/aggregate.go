package orchestrator

import (
	"time"

	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/sampler"
)

// BuildSummary aggregates a result set into summary statistics. Pure
// aggregation over its inputs (the timestamp aside), so the same results
// always produce the same numbers.
func BuildSummary(results []models.AnalysisResult, sampling *sampler.Result, model string, tokensUsed int, estimatedCost float64) *models.AnalysisSummary {
	summary := &models.AnalysisSummary{
		TotalSessions:   len(results),
		TransferReasons: make(map[string]int),
		Intents:         make(map[string]int),
		TokensUsed:      tokensUsed,
		EstimatedCost:   estimatedCost,
		Model:           model,
		GeneratedAt:     time.Now(),
	}

	for _, result := range results {
		if !result.Analyzed {
			summary.UnanalyzedSessions++
			continue
		}
		summary.AnalyzedSessions++

		switch result.Outcome {
		case models.OutcomeContained:
			summary.ContainedCount++
		case models.OutcomeTransfer:
			summary.TransferCount++
			if result.TransferReason != "" {
				summary.TransferReasons[result.TransferReason]++
			}
		}

		if result.Intent != "" {
			summary.Intents[result.Intent]++
		}
	}

	if summary.AnalyzedSessions > 0 {
		summary.ContainmentRate = float64(summary.ContainedCount) / float64(summary.AnalyzedSessions)
	}

	if sampling != nil {
		summary.WindowsSearched = sampling.WindowsSearched
		summary.Windows = sampling.Windows
	}

	return summary
}
