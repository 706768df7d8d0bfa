package transcripts

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// NewSource builds the SessionSource for one job's credentials. Mock mode
// serves the configured YAML scenario regardless of credentials; HTTP
// mode builds a per-bot store client, with the configured base URL and
// auth mode as fallbacks when the credentials leave them unset.
func NewSource(config *common.Config, creds models.StoreCredentials, logger arbor.ILogger) (interfaces.SessionSource, error) {
	if config.Store.Mode == "mock" {
		return LoadScenario(config.Store.ScenarioFile)
	}

	if creds.BaseURL == "" {
		creds.BaseURL = config.Store.BaseURL
	}
	if creds.AuthMode == "" {
		creds.AuthMode = config.Store.AuthMode
	}

	return NewClient(creds,
		WithLogger(logger),
		WithRateInterval(config.StoreRateInterval()),
		WithTimeout(config.StoreRequestTimeout()),
		WithPageLimit(config.Store.PageLimit),
		WithTokenURL(config.Store.TokenURL),
	)
}
