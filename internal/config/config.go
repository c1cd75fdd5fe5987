package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"*"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"console"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	Model        string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// YAML files; built-in defaults are used when they do not exist
	CatalogFile string `envconfig:"CATALOG_FILE" default:"services.yaml"`
	PromptsFile string `envconfig:"PROMPTS_FILE" default:"prompts/assistants.yaml"`

	// Google OAuth
	GoogleClientID     string   `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string   `envconfig:"GOOGLE_REDIRECT_URL" default:"urn:ietf:wg:oauth:2.0:oob"`
	GoogleTokenFile    string   `envconfig:"GOOGLE_TOKEN_FILE" default:"data/google_tokens.json"`
	GoogleScopes       []string `envconfig:"GOOGLE_OAUTH_SCOPES" default:"https://www.googleapis.com/auth/calendar"`

	// Database (optional; token persistence falls back to GoogleTokenFile)
	DatabaseURL   string `envconfig:"DB_URL"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	// Listing endpoint
	MongoURL      string `envconfig:"MONGODB_URL"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"study_monster"`

	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"100"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to load config")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set; assistant actions will fail until provided")
	}
	return cfg, nil
}
