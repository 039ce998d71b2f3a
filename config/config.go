package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server Server
	AWS    AWS
	Dynamo Dynamo
	Redis  Redis
	JWT    JWT
	Stripe Stripe
	Email  Email
	Meta   Meta
	Admin  Admin
}

// Server holds HTTP server settings.
type Server struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	BaseURL            string // public site URL, used for prefilled registration links
}

// AWS holds region and credentials shared by the DynamoDB and SES clients.
type AWS struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional override, e.g. dynamodb-local
}

// Dynamo holds table and index names.
type Dynamo struct {
	RegistrationsTable  string
	RegistrationIDIndex string
	ReferralEventsTable string
	ReferralCodeIndex   string
}

// Redis holds connection settings for webhook event deduplication.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// JWT holds admin token signing settings.
type JWT struct {
	Secret      string
	ExpireHours int
}

// Stripe holds the webhook shared secret.
type Stripe struct {
	WebhookSecret string
}

// Email holds SES sender and operator addresses.
type Email struct {
	FromAddress  string
	AdminAddress string
}

// Meta holds Conversions API credentials.
type Meta struct {
	PixelID       string
	AccessToken   string
	TestEventCode string
	APIVersion    string
}

// Admin holds the single operator identity allowed to log in.
type Admin struct {
	Email        string
	PasswordHash string // bcrypt
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: Server{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			BaseURL:            getEnv("BASE_URL", "https://fairdinkumsystems.com"),
		},
		AWS: AWS{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("AWS_ENDPOINT", ""),
		},
		Dynamo: Dynamo{
			RegistrationsTable:  getEnv("TABLE_NAME", "course_registrations"),
			RegistrationIDIndex: getEnv("REGISTRATION_ID_INDEX", "registration_id-index"),
			ReferralEventsTable: getEnv("REFERRAL_EVENTS_TABLE", "referral_events"),
			ReferralCodeIndex:   getEnv("REFERRAL_CODE_INDEX", "referral_code-index"),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWT{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Stripe: Stripe{
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Email: Email{
			FromAddress:  getEnv("CONTACT_FORM_EMAIL", "noreply@fairdinkumsystems.com"),
			AdminAddress: getEnv("ADMIN_EMAIL", ""),
		},
		Meta: Meta{
			PixelID:       getEnv("META_PIXEL_ID", ""),
			AccessToken:   getEnv("META_ACCESS_TOKEN", ""),
			TestEventCode: getEnv("META_TEST_EVENT_CODE", ""),
			APIVersion:    getEnv("META_API_VERSION", "v21.0"),
		},
		Admin: Admin{
			Email:        getEnv("ADMIN_LOGIN_EMAIL", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
