package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	PostgresDSN string

	// LLM backend selection: "ollama" (local) or "groq" (hosted)
	LLMProvider   string
	OllamaBaseURL string
	OllamaModel   string
	GroqAPIKey    string
	GroqModel     string
	GroqBaseURL   string
	LLMTimeout    time.Duration

	// Embedding backend (Ollama) and Chroma vector store
	EmbedModel       string
	ChromaURL        string
	ChromaCollection string

	// Mailbox sync
	GoogleClientID     string
	GoogleClientSecret string
	SyncInterval       time.Duration
	SyncPageSize       int

	// Retrieval
	ContextCharBudget int
	DefaultTopK       int
	MaxTopK           int

	// Local corpus seed file
	LocalInboxFile string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=mailmind password=mailmind dbname=mailmind port=5432 sslmode=disable"),

		LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.1:8b"),
		GroqAPIKey:    getEnv("GROQ_API_KEY", ""),
		GroqModel:     getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		GroqBaseURL:   getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMTimeout:    getDuration("LLM_TIMEOUT", 90*time.Second),

		EmbedModel:       getEnv("EMBED_MODEL", "embeddinggemma:latest"),
		ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "emails"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		SyncInterval:       getDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncPageSize:       getInt("SYNC_PAGE_SIZE", 20),

		ContextCharBudget: getInt("CONTEXT_CHAR_BUDGET", 24000),
		DefaultTopK:       getInt("DEFAULT_TOP_K", 5),
		MaxTopK:           getInt("MAX_TOP_K", 20),

		LocalInboxFile: getEnv("LOCAL_INBOX_FILE", "data/inbox.json"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
