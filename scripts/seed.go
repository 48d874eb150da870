package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scribeflow/scribeflow/backend/internal/adapters/database"
	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS ai_models (
	provider TEXT NOT NULL,
	model_key TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	price_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	max_output_tokens INTEGER NOT NULL DEFAULT 4096,
	context_length INTEGER NOT NULL DEFAULT 128000,
	total_requests BIGINT NOT NULL DEFAULT 0,
	total_errors BIGINT NOT NULL DEFAULT 0,
	consecutive_errors INTEGER NOT NULL DEFAULT 0,
	error_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	disabled_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (provider, model_key)
);

CREATE TABLE IF NOT EXISTS user_credits (
	user_id TEXT PRIMARY KEY,
	balance DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	operation_type TEXT NOT NULL,
	reference_id TEXT NOT NULL,
	balance_after DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_ledger_reference ON credit_ledger (reference_id);
CREATE INDEX IF NOT EXISTS idx_credit_ledger_user ON credit_ledger (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transcriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT 'en',
	source_text TEXT NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	speaker_recognition BOOLEAN NOT NULL DEFAULT FALSE,
	enhanced_text TEXT,
	enhancement_summary TEXT,
	enhanced BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS enhancement_errors (
	id TEXT PRIMARY KEY,
	transcription_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model_key TEXT NOT NULL,
	operation TEXT NOT NULL,
	error_code TEXT NOT NULL,
	message TEXT NOT NULL,
	request_chars INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_enhancement_errors_transcription ON enhancement_errors (transcription_id, created_at DESC);

CREATE TABLE IF NOT EXISTS enhancement_jobs (
	id TEXT PRIMARY KEY,
	request JSONB NOT NULL,
	state TEXT NOT NULL,
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_enhancement_jobs_queue ON enhancement_jobs (state, created_at);
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, dropping tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			DROP TABLE IF EXISTS
				enhancement_jobs,
				enhancement_errors,
				credit_ledger,
				user_credits,
				transcriptions,
				ai_models
			CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	if _, err := pgClient.DB().ExecContext(ctx, schema); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	log.Println("Schema ready")

	// 1. Seed the model catalog
	registry := database.NewModelRegistryAdapter(pgClient)
	models := []entities.ModelDescriptor{
		{Provider: "openai", ModelKey: "gpt-4o-mini", DisplayName: "GPT-4o mini", IsActive: true, PriceMultiplier: 1.0, MaxOutputTokens: 4096, ContextLength: 128000},
		{Provider: "openai", ModelKey: "gpt-4o", DisplayName: "GPT-4o", IsActive: true, PriceMultiplier: 2.0, MaxOutputTokens: 4096, ContextLength: 128000},
		{Provider: "gemini", ModelKey: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", IsActive: true, PriceMultiplier: 0.8, MaxOutputTokens: 8192, ContextLength: 1000000},
		{Provider: "groq", ModelKey: "llama-3.3-70b-versatile", DisplayName: "Llama 3.3 70B", IsActive: true, PriceMultiplier: 0.5, MaxOutputTokens: 4096, ContextLength: 32768},
		{Provider: "together", ModelKey: "meta-llama/Llama-3.3-70B-Instruct-Turbo", DisplayName: "Llama 3.3 70B Turbo", IsActive: true, PriceMultiplier: 0.5, MaxOutputTokens: 4096, ContextLength: 131072},
	}
	for _, m := range models {
		model := m
		if err := registry.Create(ctx, &model); err != nil {
			log.Printf("Failed to create model %s/%s: %v", m.Provider, m.ModelKey, err)
		}
	}
	log.Printf("Seeded %d models", len(models))

	// 2. Seed a demo user with credits and a transcription to enhance
	demoUser := "demo-user"
	if _, err := pgClient.DB().ExecContext(ctx, `
		INSERT INTO user_credits (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
	`, demoUser, 50.0); err != nil {
		log.Fatalf("Failed to seed credits: %v", err)
	}

	transcriptionID := uuid.NewString()
	if _, err := pgClient.DB().ExecContext(ctx, `
		INSERT INTO transcriptions (id, user_id, language, source_text, duration_seconds, speaker_recognition, updated_at)
		VALUES ($1, $2, 'en', $3, 57, TRUE, $4)
	`, transcriptionID, demoUser,
		"Today we will cover photosynthesis. Plants convert light energy into chemical energy. "+
			"The process takes place in the chloroplasts. Chlorophyll absorbs light in the red and blue parts of the spectrum.",
		time.Now().UTC()); err != nil {
		log.Fatalf("Failed to seed transcription: %v", err)
	}

	log.Printf("Seeded demo user %q with transcription %s", demoUser, transcriptionID)
}
