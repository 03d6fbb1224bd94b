package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/courses.db"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4280"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Ollama-Konfiguration für die Keyword-Extraktion
	OllamaHost  string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"gemma2:latest"`
	MinKeywords int    `envconfig:"MIN_KEYWORDS" default:"3"`
	MaxKeywords int    `envconfig:"MAX_KEYWORDS" default:"5"`

	// Empfehlungs-Policy
	MinScore   float64 `envconfig:"MIN_SCORE" default:"0.0"`
	MaxResults int     `envconfig:"MAX_RESULTS" default:"10"`

	// Analyse-Einstellungen
	SummaryMaxChars int    `envconfig:"SUMMARY_MAX_CHARS" default:"200"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"uploads"`
	CronSchedule    string `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`

	// Optionales S3-Archiv für hochgeladene PDFs; leer lassen, um es zu deaktivieren.
	ArchiveS3Key    string `envconfig:"ARCHIVE_S3_KEY"`
	ArchiveS3Secret string `envconfig:"ARCHIVE_S3_SECRET"`
	ArchiveS3URL    string `envconfig:"ARCHIVE_S3_URL"`
	ArchiveS3Region string `envconfig:"ARCHIVE_S3_REGION"`
	ArchiveS3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
}

// ArchiveEnabled meldet, ob das S3-Archiv vollständig konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Key != "" && c.ArchiveS3Secret != "" && c.ArchiveS3URL != "" &&
		c.ArchiveS3Region != "" && c.ArchiveS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
