package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCRMWebhookURL is used when CRM_WEBHOOK_URL is unset. Production deployments
// should always override it.
const DefaultCRMWebhookURL = "https://services.leadconnectorhq.com/hooks/retirement-funnel/webhook-trigger/lead-capture"

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	AdminJWTSecret     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking confirmation store
	BookingStore         string
	BookingTTL           time.Duration
	BookingTable         string
	BookingWebhookSecret string

	// CRM webhook relay
	CRMWebhookURL     string
	CRMWebhookTimeout time.Duration
	CRMRelayWorkers   int
	CRMRelayQueueSize int

	// OTP verification
	OTPProvider       string
	OTPMaxAttempts    int
	OTPResendCooldown time.Duration
	OTPCodeTTL        time.Duration
	OTPSessionTTL     time.Duration
	OTPRateLimit      float64
	OTPRateBurst      int

	// SMS transport
	SMSProvider              string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioFromNumber         string
	TwilioVerifyServiceSID   string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Team notifications
	LeadNotifyEmail   string
	LeadNotifySMS     string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESConfigSet      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BookingStore:         strings.ToLower(strings.TrimSpace(getEnv("BOOKING_STORE", "memory"))),
		BookingTTL:           getEnvAsDuration("BOOKING_TTL", 0),
		BookingTable:         getEnv("BOOKING_TABLE", "booking_confirmations"),
		BookingWebhookSecret: getEnv("BOOKING_WEBHOOK_SECRET", ""),

		CRMWebhookURL:     getEnv("CRM_WEBHOOK_URL", DefaultCRMWebhookURL),
		CRMWebhookTimeout: getEnvAsDuration("CRM_WEBHOOK_TIMEOUT", 10*time.Second),
		CRMRelayWorkers:   getEnvAsInt("CRM_RELAY_WORKERS", 2),
		CRMRelayQueueSize: getEnvAsInt("CRM_RELAY_QUEUE_SIZE", 256),

		OTPProvider:       strings.ToLower(strings.TrimSpace(getEnv("OTP_PROVIDER", "local"))),
		OTPMaxAttempts:    getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		OTPResendCooldown: getEnvAsDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
		OTPCodeTTL:        getEnvAsDuration("OTP_CODE_TTL", 10*time.Minute),
		OTPSessionTTL:     getEnvAsDuration("OTP_SESSION_TTL", 30*time.Minute),
		OTPRateLimit:      getEnvAsFloat("OTP_RATE_LIMIT", 0.2),
		OTPRateBurst:      getEnvAsInt("OTP_RATE_BURST", 5),

		SMSProvider:              strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:         getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioVerifyServiceSID:   getEnv("TWILIO_VERIFY_SERVICE_SID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LeadNotifyEmail:   getEnv("LEAD_NOTIFY_EMAIL", ""),
		LeadNotifySMS:     getEnv("LEAD_NOTIFY_SMS", ""),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Retirement Leads"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
