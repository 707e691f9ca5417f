package appconfig

import (
	"time"

	"github.com/SaiNageswarS/go-api-boot/config"
)

type AppConfig struct {
	config.BootConfig `ini:",extends"`

	HTTPPort              string `env:"HTTP-PORT" ini:"http_port"`
	GRPCPort              string `env:"GRPC-PORT" ini:"grpc_port"`
	RequestTimeoutSeconds int    `env:"REQUEST-TIMEOUT-SECONDS" ini:"request_timeout_seconds"`
	RequestsPerMinute     int    `env:"REQUESTS-PER-MINUTE" ini:"requests_per_minute"`

	TicketsDir string `env:"TICKETS-DIR" ini:"tickets_dir"`
	// historical ticket exports for /import_historical_tickets
	DataDir string `env:"DATA-DIR" ini:"data_dir"`

	// chat completion: "azure", "openai" or "anthropic"
	LLMProvider           string `env:"LLM-PROVIDER" ini:"llm_provider"`
	LLMModel              string `env:"LLM-MODEL" ini:"llm_model"`
	LLMBaseURL            string `env:"LLM-BASE-URL" ini:"llm_base_url"`
	LLMAPIKey             string `env:"LLM-API-KEY" ini:"llm_api_key"`
	AzureOpenAIEndpoint   string `env:"AZURE-OPENAI-ENDPOINT" ini:"azure_openai_endpoint"`
	AzureOpenAIKey        string `env:"AZURE-OPENAI-KEY" ini:"azure_openai_key"`
	AzureOpenAIDeployment string `env:"AZURE-OPENAI-DEPLOYMENT" ini:"azure_openai_deployment"`
	AzureOpenAIAPIVersion string `env:"AZURE-OPENAI-API-VERSION" ini:"azure_openai_api_version"`

	// embeddings: "azure" or "ollama"
	EmbeddingProvider   string `env:"EMBEDDING-PROVIDER" ini:"embedding_provider"`
	EmbeddingDeployment string `env:"EMBEDDING-DEPLOYMENT" ini:"embedding_deployment"`
	EmbeddingModel      string `env:"EMBEDDING-MODEL" ini:"embedding_model"`

	SearchServiceURL string  `env:"AZURE-AI-SEARCH-SERVICE" ini:"search_service_url"`
	SearchAPIKey     string  `env:"AZURE-AI-SEARCH-API-KEY" ini:"search_api_key"`
	SearchIndex      string  `env:"SEARCH-INDEX" ini:"search_index"`
	SearchAPIVersion string  `env:"AZURE-AI-API-VERSION" ini:"search_api_version"`
	SimilarTopK      int     `env:"SIMILAR-TOP-K" ini:"similar_top_k"`
	MinRelevance     float64 `env:"MIN-RELEVANCE" ini:"min_relevance"`

	SMTPServer      string `env:"SMTP-SERVER" ini:"smtp_server"`
	SMTPPort        int    `env:"SMTP-PORT" ini:"smtp_port"`
	SMTPUsername    string `env:"SMTP-USERNAME" ini:"smtp_username"`
	SMTPPassword    string `env:"SMTP-PASSWORD" ini:"smtp_password"`
	EscalationEmail string `env:"ESCALATION-EMAIL" ini:"escalation_email"`
	OversightEmail  string `env:"OVERSIGHT-EMAIL" ini:"oversight_email"`

	// sessions: "memory" or "redis"
	SessionBackend     string `env:"SESSION-BACKEND" ini:"session_backend"`
	RedisAddr          string `env:"REDIS-ADDR" ini:"redis_addr"`
	RedisPassword      string `env:"REDIS-PASSWORD" ini:"redis_password"`
	MaxSessionMessages int    `env:"MAX-SESSION-MESSAGES" ini:"max_session_messages"`
	// 0 disables the idle sweep; sessions then live for the process lifetime.
	SessionIdleMinutes int    `env:"SESSION-IDLE-MINUTES" ini:"session_idle_minutes"`
	SessionSweepCron   string `env:"SESSION-SWEEP-CRON" ini:"session_sweep_cron"`
}

// ApplyDefaults fills values left empty by config.ini and the environment.
func (c *AppConfig) ApplyDefaults() {
	if c.HTTPPort == "" {
		c.HTTPPort = ":8000"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = ":50051"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 60
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.TicketsDir == "" {
		c.TicketsDir = "tickets"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LLMProvider == "" {
		c.LLMProvider = "azure"
	}
	if c.AzureOpenAIAPIVersion == "" {
		c.AzureOpenAIAPIVersion = "2024-10-21"
	}
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = "azure"
	}
	if c.EmbeddingModel == "" && c.EmbeddingProvider == "azure" {
		c.EmbeddingModel = "text-embedding-ada-002"
	}
	if c.SearchIndex == "" {
		c.SearchIndex = "ticket_index"
	}
	if c.SearchAPIVersion == "" {
		c.SearchAPIVersion = "2024-07-01"
	}
	if c.SimilarTopK <= 0 {
		c.SimilarTopK = 5
	}
	if c.MinRelevance <= 0 {
		c.MinRelevance = 0.03
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.SessionBackend == "" {
		c.SessionBackend = "memory"
	}
	if c.SessionSweepCron == "" {
		c.SessionSweepCron = "@every 10m"
	}
}

func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *AppConfig) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}
