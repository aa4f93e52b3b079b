package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	openrouterx "github.com/tanpawarit/bizai-insight/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.1"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true" default:"BizAI"`

	AnalystModel       string  `envconfig:"ANALYST_MODEL" split_words:"true"`
	AnalystTemperature float32 `envconfig:"ANALYST_TEMPERATURE" split_words:"true" default:"-1"`

	// Model turns per chat request, and the shared limiter in front of them.
	MaxTurns       int     `envconfig:"MAX_TURNS" split_words:"true" default:"3"`
	RequestsPerSec float64 `envconfig:"REQUESTS_PER_SEC" split_words:"true" default:"5"`
	Burst          int     `envconfig:"BURST" split_words:"true" default:"5"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("%w: max turns must be >= 1", contractx.ErrValidation)
	}
	return nil
}

// Analyst resolves the provider config for the analyst model, applying the
// analyst-specific overrides when they are set.
func (c Config) Analyst() openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	if v := strings.TrimSpace(c.AnalystModel); v != "" {
		modelName = v
	}
	temp := c.Temperature
	if c.AnalystTemperature >= 0 {
		temp = c.AnalystTemperature
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
