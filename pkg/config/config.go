package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds server configuration read from the environment.
type Config struct {
	AppName         string
	Port            int
	DBPath          string
	ProofDir        string
	ProofBucket     string // GCS bucket; proofs go to ProofDir when empty
	MaxProofBytes   int64
	SendgridAPIKey  string // Console mailer is used when empty
	MailFrom        string
	AdminEmail      string // Bootstrap admin account and copy of admin notifications
	AdminName       string
	AdminPassword   string // Bootstrap is skipped when empty
	LogLevel        string
	LogFormat       string
	OTELEndpoint    string
	OTELServiceName string
}

// LoadConfig reads .env if present, then the environment.
func LoadConfig() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{
		AppName:         getEnvString("APP_NAME", "fredSavings"),
		Port:            getEnvInt("PORT", 8080),
		DBPath:          getEnvString("DB_PATH", "fredsavings.db"),
		ProofDir:        getEnvString("PROOF_DIR", "uploads"),
		ProofBucket:     getEnvString("PROOF_BUCKET", ""),
		MaxProofBytes:   int64(getEnvInt("MAX_PROOF_BYTES", 5<<20)),
		SendgridAPIKey:  getEnvString("SENDGRID_API_KEY", ""),
		MailFrom:        getEnvString("MAIL_FROM", "no-reply@fredsavings.local"),
		AdminEmail:      getEnvString("ADMIN_EMAIL", ""),
		AdminName:       getEnvString("ADMIN_NAME", "Administrator"),
		AdminPassword:   getEnvString("ADMIN_PASSWORD", ""),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		LogFormat:       getEnvString("LOG_FORMAT", "console"),
		OTELEndpoint:    getEnvString("OTEL_ENDPOINT", ""),
		OTELServiceName: getEnvString("OTEL_SERVICE_NAME", "fredsavings-api"),
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
