// -----------------------------------------------------------------------
// Analysis Result - Per-session facts, run summary and export report
// -----------------------------------------------------------------------

package models

import "time"

const (
	// OutcomeTransfer and OutcomeContained are the only outcomes the
	// response parser accepts; anything else fails the batch.
	OutcomeTransfer  = "Transfer"
	OutcomeContained = "Contained"

	// ReportSchemaVersion is stamped into every exported report. Import
	// rejects reports whose version does not match.
	ReportSchemaVersion = 2
)

// SessionFacts are the facts the model extracted for one session.
type SessionFacts struct {
	Intent          string `json:"intent"`
	Outcome         string `json:"outcome"`
	TransferReason  string `json:"transfer_reason,omitempty"`
	DropOffLocation string `json:"drop_off_location,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// AnalysisResult is the outcome for exactly one sampled session. Every
// session handed to the analyzer produces one, analyzed or not.
type AnalysisResult struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id,omitempty"`
	StartTime       time.Time `json:"start_time"`
	ContainmentType string    `json:"containment_type,omitempty"`
	MessageCount    int       `json:"message_count"`
	Analyzed        bool      `json:"analyzed"`
	AnalysisError   string    `json:"analysis_error,omitempty"` // Why the session went unanalyzed
	SessionFacts
}

// UnanalyzedResult builds the placeholder result for a session whose
// batch failed or was never submitted.
func UnanalyzedResult(session SessionRecord, reason string) AnalysisResult {
	return AnalysisResult{
		SessionID:       session.SessionID,
		UserID:          session.UserID,
		StartTime:       session.StartTime,
		ContainmentType: session.ContainmentType,
		MessageCount:    session.MessageCount(),
		Analyzed:        false,
		AnalysisError:   reason,
	}
}

// AnalyzedResult builds the result for a session the model produced facts
// for.
func AnalyzedResult(session SessionRecord, facts SessionFacts) AnalysisResult {
	return AnalysisResult{
		SessionID:       session.SessionID,
		UserID:          session.UserID,
		StartTime:       session.StartTime,
		ContainmentType: session.ContainmentType,
		MessageCount:    session.MessageCount(),
		Analyzed:        true,
		SessionFacts:    facts,
	}
}

// AnalysisSummary is the pure aggregation over a run's results. It is
// derived entirely from the result slice plus the sampling report; no
// extra state.
type AnalysisSummary struct {
	TotalSessions      int            `json:"total_sessions"`
	AnalyzedSessions   int            `json:"analyzed_sessions"`
	UnanalyzedSessions int            `json:"unanalyzed_sessions"`
	ContainedCount     int            `json:"contained_count"`
	TransferCount      int            `json:"transfer_count"`
	ContainmentRate    float64        `json:"containment_rate"` // Contained / analyzed, 0 when nothing analyzed
	TransferReasons    map[string]int `json:"transfer_reasons"`
	Intents            map[string]int `json:"intents"`
	TokensUsed         int            `json:"tokens_used"`
	EstimatedCost      float64        `json:"estimated_cost"`
	Model              string         `json:"model"`
	WindowsSearched    int            `json:"windows_searched"`
	Windows            []WindowReport `json:"windows,omitempty"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// AnalysisReport is the export envelope for a completed run: identity,
// redacted config, summary and the full result set.
type AnalysisReport struct {
	SchemaVersion int              `json:"schema_version"`
	AnalysisID    string           `json:"analysis_id"`
	JobID         string           `json:"job_id"`
	BotID         string           `json:"bot_id"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Config        AnalysisConfig   `json:"config"`
	Summary       AnalysisSummary  `json:"summary"`
	Results       []AnalysisResult `json:"results"`
}

// Redacted returns a copy of the config safe to embed in exports.
func (c AnalysisConfig) Redacted() AnalysisConfig {
	c.APIKey = ""
	return c
}

// Batch is one analyzer work unit: a contiguous slice of the sampled
// sessions, at most the configured batch size.
type Batch struct {
	Index    int
	Sessions []SessionRecord
}

// PartitionSessions splits sessions into fixed-size batches preserving
// order. The final batch may be smaller. A non-positive batchSize yields
// a single batch.
func PartitionSessions(sessions []SessionRecord, batchSize int) []Batch {
	if len(sessions) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(sessions)
	}

	batches := make([]Batch, 0, (len(sessions)+batchSize-1)/batchSize)
	for start := 0; start < len(sessions); start += batchSize {
		end := start + batchSize
		if end > len(sessions) {
			end = len(sessions)
		}
		batches = append(batches, Batch{
			Index:    len(batches),
			Sessions: sessions[start:end],
		})
	}
	return batches
}
