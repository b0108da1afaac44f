// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the matching service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	GeminiAPIKey   string
	GeminiModel    string // scoring/extraction model
	EmbeddingModel string

	SemanticGate     float64 // minimum semantic score (0–100) to enter LLM scoring
	ScoringBatchSize int     // jobs per LLM call
	BoostKeywords    []string

	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string

	BackfillIntervalHours int // how often the backfill cron fires

	JSONLog bool
	Debug   bool
}

const (
	defaultPort             = "8084"
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultEmbeddingModel   = "text-embedding-004"
	defaultSemanticGate     = 50
	defaultScoringBatchSize = 15
	defaultBackfillInterval = 12
)

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	gate := float64(defaultSemanticGate)
	if s := os.Getenv("SEMANTIC_GATE"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 100 {
			return nil, fmt.Errorf("SEMANTIC_GATE must be a number in [0,100], got %q", s)
		}
		gate = v
	}

	batch := defaultScoringBatchSize
	if s := os.Getenv("SCORING_BATCH_SIZE"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCORING_BATCH_SIZE must be a positive integer, got %q", s)
		}
		batch = v
	}

	interval := defaultBackfillInterval
	if s := os.Getenv("BACKFILL_INTERVAL_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("BACKFILL_INTERVAL_HOURS must be a positive integer, got %q", s)
		}
		interval = v
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultGeminiModel
	}

	embedModel := os.Getenv("EMBEDDING_MODEL")
	if embedModel == "" {
		embedModel = defaultEmbeddingModel
	}

	var keywords []string
	if s := os.Getenv("BOOST_KEYWORDS"); s != "" {
		for _, kw := range strings.Split(s, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	country := os.Getenv("ADZUNA_COUNTRY")
	if country == "" {
		country = "de"
	}

	port := os.Getenv("MATCHER_PORT")
	if port == "" {
		port = defaultPort
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		GeminiAPIKey:          apiKey,
		GeminiModel:           model,
		EmbeddingModel:        embedModel,
		SemanticGate:          gate,
		ScoringBatchSize:      batch,
		BoostKeywords:         keywords,
		AdzunaAppID:           os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:          os.Getenv("ADZUNA_APP_KEY"),
		AdzunaCountry:         country,
		BackfillIntervalHours: interval,
		JSONLog:               os.Getenv("LOG_JSON") == "true",
		Debug:                 os.Getenv("DEBUG") == "true",
	}, nil
}
