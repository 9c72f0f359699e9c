package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	CatalogDir   string
	SnapshotPath string
	ExportDir    string
	ExportFormat string
	DBPath       string
	RawMailDir   string
	TablesPath   string

	Embedder              string
	EmbeddingBaseURL      string
	EmbeddingAPIKey       string
	EmbeddingModel        string
	EmbeddingBatchSize    int
	EmbeddingTimeoutMs    int
	EmbeddingRateLimitRPS int
	EmbeddingMaxRetries   int

	ConfidenceHigh       float64
	ConfidenceMedium     float64
	ConfidenceLow        float64
	MinSimilarity        float64
	MaxCandidatesPerItem int
	GapBonusWeight       float64

	HTTPAddr       string
	AllowedOrigins []string
	MaxUploadBytes int64

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		CatalogDir:   getEnv("CATALOG_DIR", filepath.Join(cwd, "catalog")),
		SnapshotPath: getEnv("SNAPSHOT_PATH", filepath.Join(cwd, "temp", "catalog.json")),
		ExportDir:    getEnv("EXPORT_DIR", filepath.Join(cwd, "temp")),
		ExportFormat: strings.ToLower(getEnv("EXPORT_FORMAT", "csv")),
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir:   getEnv("RAW_MAIL_DIR", filepath.Join(cwd, "data", "raw")),
		TablesPath:   getEnv("TABLES_PATH", ""),

		Embedder:              strings.ToLower(getEnv("EMBEDDER", "tfidf")),
		EmbeddingBaseURL:      getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:        getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBatchSize:    getEnvInt("EMBEDDING_BATCH_SIZE", 64),
		EmbeddingTimeoutMs:    getEnvInt("EMBEDDING_TIMEOUT_MS", 30000),
		EmbeddingRateLimitRPS: getEnvInt("EMBEDDING_RATE_LIMIT_RPS", 5),
		EmbeddingMaxRetries:   getEnvInt("EMBEDDING_MAX_RETRIES", 3),

		ConfidenceHigh:       getEnvFloat("CONFIDENCE_THRESHOLD_HIGH", 0.75),
		ConfidenceMedium:     getEnvFloat("CONFIDENCE_THRESHOLD_MEDIUM", 0.55),
		ConfidenceLow:        getEnvFloat("CONFIDENCE_THRESHOLD_LOW", 0.35),
		MinSimilarity:        getEnvFloat("MIN_SIMILARITY_THRESHOLD", 0.25),
		MaxCandidatesPerItem: getEnvInt("MAX_CANDIDATES_PER_ITEM", 5),
		GapBonusWeight:       getEnvFloat("GAP_BONUS_WEIGHT", 0.3),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "gmail"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 30),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !(c.ConfidenceHigh >= c.ConfidenceMedium && c.ConfidenceMedium >= c.ConfidenceLow) {
		return fmt.Errorf("confidence thresholds must descend: high=%v medium=%v low=%v",
			c.ConfidenceHigh, c.ConfidenceMedium, c.ConfidenceLow)
	}
	if c.MaxCandidatesPerItem <= 0 {
		return fmt.Errorf("MAX_CANDIDATES_PER_ITEM must be positive, got %d", c.MaxCandidatesPerItem)
	}
	switch c.ExportFormat {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("unsupported EXPORT_FORMAT %q", c.ExportFormat)
	}
	switch c.Embedder {
	case "tfidf", "openai":
	default:
		return fmt.Errorf("unsupported EMBEDDER %q", c.Embedder)
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
