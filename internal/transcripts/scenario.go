package transcripts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// ScenarioStore is a file-backed SessionSource for local runs and tests.
// A scenario is a YAML document listing sessions with their transcripts;
// listings are deterministic (ordered by start time, then session ID) so
// runs against the same file always sample the same sessions.
type ScenarioStore struct {
	sessions []models.SessionRecord
}

type scenarioFile struct {
	Sessions []scenarioSession `yaml:"sessions"`
}

type scenarioSession struct {
	SessionID       string            `yaml:"session_id"`
	UserID          string            `yaml:"user_id"`
	StartTime       time.Time         `yaml:"start_time"`
	EndTime         time.Time         `yaml:"end_time"`
	ContainmentType string            `yaml:"containment_type"`
	Messages        []scenarioMessage `yaml:"messages"`
}

type scenarioMessage struct {
	Role string    `yaml:"role"`
	Text string    `yaml:"text"`
	At   time.Time `yaml:"at"`
}

// LoadScenario reads a scenario YAML file into a store.
func LoadScenario(path string) (*ScenarioStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}

	sessions := make([]models.SessionRecord, 0, len(file.Sessions))
	for _, s := range file.Sessions {
		if s.SessionID == "" {
			return nil, fmt.Errorf("scenario file %s: session without session_id", path)
		}
		messages := make([]models.Message, 0, len(s.Messages))
		for _, m := range s.Messages {
			messages = append(messages, models.Message{
				Role:      m.Role,
				Text:      m.Text,
				CreatedAt: m.At,
			})
		}
		sessions = append(sessions, models.SessionRecord{
			SessionID:       s.SessionID,
			UserID:          s.UserID,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			ContainmentType: s.ContainmentType,
			Messages:        messages,
		})
	}

	return NewScenarioStore(sessions), nil
}

// NewScenarioStore builds a store over an in-memory session set.
func NewScenarioStore(sessions []models.SessionRecord) *ScenarioStore {
	sorted := make([]models.SessionRecord, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].SessionID < sorted[j].SessionID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	return &ScenarioStore{sessions: sorted}
}

// ListSessions returns headers for sessions starting within [From, To),
// without transcripts attached.
func (s *ScenarioStore) ListSessions(ctx context.Context, query interfaces.SessionQuery) ([]models.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []models.SessionRecord
	for _, session := range s.sessions {
		if !inWindow(session.StartTime, query.From, query.To) {
			continue
		}
		if query.ContainmentType != "" && session.ContainmentType != query.ContainmentType {
			continue
		}
		records = append(records, session.WithMessages(nil))
		if query.Limit > 0 && len(records) >= query.Limit {
			break
		}
	}
	return records, nil
}

// ListMessages returns the transcripts of the requested sessions, window
// and ID scoped like the real store.
func (s *ScenarioStore) ListMessages(ctx context.Context, query interfaces.SessionQuery, sessionIDs []string) (map[string][]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}

	result := make(map[string][]models.Message)
	for _, session := range s.sessions {
		if !wanted[session.SessionID] || !inWindow(session.StartTime, query.From, query.To) {
			continue
		}
		messages := make([]models.Message, len(session.Messages))
		copy(messages, session.Messages)
		result[session.SessionID] = messages
	}
	return result, nil
}

// Close is a no-op for the scenario store.
func (s *ScenarioStore) Close() error {
	return nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
