// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// RedisConfig provides settings for the redis click-log store and task queue.
type RedisConfig interface {
	GetRedisURL() string
}

// ClickLogConfig provides settings for the click-log store.
type ClickLogConfig interface {
	GetClickLogTTL() time.Duration
	GetDefaultPhoneRegion() string
}

// WebhookConfig provides settings for inbound CRM webhook authentication.
type WebhookConfig interface {
	GetWebhookToken() string
}

// KommoConfig provides settings for the Kommo CRM API client.
type KommoConfig interface {
	GetKommoBaseURL() string
	GetKommoSubdomain() string
	GetKommoAccessToken() string
	GetKommoTargetPipelineID() int64
	GetKommoFieldIDs() KommoFieldIDs
}

// GoogleAdsConfig provides settings for the Google Ads conversion upload client.
type GoogleAdsConfig interface {
	GetAdsDeveloperToken() string
	GetAdsLoginCustomerID() string
	GetAdsClientCustomerID() string
	GetAdsOAuthClientID() string
	GetAdsOAuthClientSecret() string
	GetAdsOAuthRefreshToken() string
	GetAdsConversionActionIDs() map[string]string
	IsAdsEnabled() bool
}

// ConversionConfig provides settings for the stage-transition orchestrator.
type ConversionConfig interface {
	// GetQualifyingStages maps a conversion type to the pipeline status IDs
	// that qualify a lead for that conversion action.
	GetQualifyingStages() map[string][]int64
}

// SchedulerConfig provides settings for the asynq upload queue.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// AlertConfig provides settings for operational email alerts.
type AlertConfig interface {
	GetAlertSMTPHost() string
	GetAlertSMTPPort() int
	GetAlertSMTPUsername() string
	GetAlertSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertToAddress() string
	IsAlertEnabled() bool
}

// KommoFieldIDs holds the numeric custom-field IDs configured in the Kommo
// account. Lead fields and contact fields live in separate namespaces.
type KommoFieldIDs struct {
	// Lead fields
	Source          int64
	GCLID           int64
	GBRAID          int64
	PagePath        int64
	Country         int64
	ConversionValue int64
	CurrencyCode    int64
	ConversionTime  int64
	// Contact fields
	Phone int64
	Email int64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	RedisURL           string
	CORSAllowAll       bool
	CORSOrigins        []string
	ClickLogTTL        time.Duration
	DefaultPhoneRegion string
	WebhookToken       string

	KommoBaseURL          string
	KommoSubdomain        string
	KommoAccessToken      string
	KommoTargetPipelineID int64
	KommoFields           KommoFieldIDs

	AdsEnabled             bool
	AdsDeveloperToken      string
	AdsLoginCustomerID     string
	AdsClientCustomerID    string
	AdsOAuthClientID       string
	AdsOAuthClientSecret   string
	AdsOAuthRefreshToken   string
	AdsConversionActionIDs map[string]string

	QualifyingStages map[string][]int64

	AsynqQueueName   string
	AsynqConcurrency int

	AlertSMTPHost     string
	AlertSMTPPort     int
	AlertSMTPUsername string
	AlertSMTPPassword string
	AlertFromAddress  string
	AlertToAddress    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// ClickLogConfig implementation
func (c *Config) GetClickLogTTL() time.Duration { return c.ClickLogTTL }
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// WebhookConfig implementation
func (c *Config) GetWebhookToken() string { return c.WebhookToken }

// KommoConfig implementation
func (c *Config) GetKommoBaseURL() string         { return c.KommoBaseURL }
func (c *Config) GetKommoSubdomain() string       { return c.KommoSubdomain }
func (c *Config) GetKommoAccessToken() string     { return c.KommoAccessToken }
func (c *Config) GetKommoTargetPipelineID() int64 { return c.KommoTargetPipelineID }
func (c *Config) GetKommoFieldIDs() KommoFieldIDs { return c.KommoFields }

// GoogleAdsConfig implementation
func (c *Config) GetAdsDeveloperToken() string    { return c.AdsDeveloperToken }
func (c *Config) GetAdsLoginCustomerID() string   { return c.AdsLoginCustomerID }
func (c *Config) GetAdsClientCustomerID() string  { return c.AdsClientCustomerID }
func (c *Config) GetAdsOAuthClientID() string     { return c.AdsOAuthClientID }
func (c *Config) GetAdsOAuthClientSecret() string { return c.AdsOAuthClientSecret }
func (c *Config) GetAdsOAuthRefreshToken() string { return c.AdsOAuthRefreshToken }
func (c *Config) GetAdsConversionActionIDs() map[string]string {
	return c.AdsConversionActionIDs
}
func (c *Config) IsAdsEnabled() bool { return c.AdsEnabled && c.AdsDeveloperToken != "" }

// ConversionConfig implementation
func (c *Config) GetQualifyingStages() map[string][]int64 { return c.QualifyingStages }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// AlertConfig implementation
func (c *Config) GetAlertSMTPHost() string     { return c.AlertSMTPHost }
func (c *Config) GetAlertSMTPPort() int        { return c.AlertSMTPPort }
func (c *Config) GetAlertSMTPUsername() string { return c.AlertSMTPUsername }
func (c *Config) GetAlertSMTPPassword() string { return c.AlertSMTPPassword }
func (c *Config) GetAlertFromAddress() string  { return c.AlertFromAddress }
func (c *Config) GetAlertToAddress() string    { return c.AlertToAddress }
func (c *Config) IsAlertEnabled() bool {
	return c.AlertSMTPHost != "" && c.AlertToAddress != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CORSAllowAll:       strings.EqualFold(getEnv("CORS_ALLOW_ALL", "true"), "true"),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "")),
		ClickLogTTL:        mustDuration(getEnv("CLICK_LOG_TTL", "15m")),
		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "US"),
		WebhookToken:       getEnv("WEBHOOK_TOKEN", ""),

		KommoBaseURL:          getEnv("KOMMO_BASE_URL", "https://{subdomain}.kommo.com/api/v4"),
		KommoSubdomain:        getEnv("KOMMO_SUBDOMAIN", ""),
		KommoAccessToken:      getEnv("KOMMO_ACCESS_TOKEN", ""),
		KommoTargetPipelineID: mustInt64(getEnv("KOMMO_TARGET_PIPELINE_ID", "0")),
		KommoFields: KommoFieldIDs{
			Source:          mustInt64(getEnv("KOMMO_SOURCE_FIELD_ID", "0")),
			GCLID:           mustInt64(getEnv("KOMMO_GCLID_FIELD_ID", "0")),
			GBRAID:          mustInt64(getEnv("KOMMO_GBRAID_FIELD_ID", "0")),
			PagePath:        mustInt64(getEnv("KOMMO_PAGEPATH_FIELD_ID", "0")),
			Country:         mustInt64(getEnv("KOMMO_COUNTRY_FIELD_ID", "0")),
			ConversionValue: mustInt64(getEnv("KOMMO_CONVERSION_VALUE_FIELD_ID", "0")),
			CurrencyCode:    mustInt64(getEnv("KOMMO_CURRENCY_CODE_FIELD_ID", "0")),
			ConversionTime:  mustInt64(getEnv("KOMMO_CONVERSION_TIME_FIELD_ID", "0")),
			Phone:           mustInt64(getEnv("KOMMO_PHONE_FIELD_ID", "0")),
			Email:           mustInt64(getEnv("KOMMO_EMAIL_FIELD_ID", "0")),
		},

		AdsEnabled:           strings.EqualFold(getEnv("GOOGLE_ADS_ENABLED", "false"), "true"),
		AdsDeveloperToken:    getEnv("GOOGLE_ADS_DEVELOPER_TOKEN", ""),
		AdsLoginCustomerID:   getEnv("GOOGLE_ADS_LOGIN_CUSTOMER_ID", ""),
		AdsClientCustomerID:  getEnv("GOOGLE_ADS_CLIENT_CUSTOMER_ID", ""),
		AdsOAuthClientID:     getEnv("GOOGLE_ADS_OAUTH_CLIENT_ID", ""),
		AdsOAuthClientSecret: getEnv("GOOGLE_ADS_OAUTH_CLIENT_SECRET", ""),
		AdsOAuthRefreshToken: getEnv("GOOGLE_ADS_OAUTH_REFRESH_TOKEN", ""),
		AdsConversionActionIDs: map[string]string{
			"message_received": getEnv("GOOGLE_ADS_MESSAGE_CONVERSION_ACTION_ID", ""),
			"appointment_made": getEnv("GOOGLE_ADS_APPOINTMENT_CONVERSION_ACTION_ID", ""),
			"converted_lead":   getEnv("GOOGLE_ADS_CONVERTED_CONVERSION_ACTION_ID", ""),
		},

		QualifyingStages: parseStageMap(getEnv("CONVERSION_QUALIFYING_STAGES", "")),

		AsynqQueueName:   getEnv("ASYNQ_QUEUE_NAME", "conversions"),
		AsynqConcurrency: int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "5"))),

		AlertSMTPHost:     getEnv("ALERT_SMTP_HOST", ""),
		AlertSMTPPort:     int(mustInt64(getEnv("ALERT_SMTP_PORT", "587"))),
		AlertSMTPUsername: getEnv("ALERT_SMTP_USERNAME", ""),
		AlertSMTPPassword: getEnv("ALERT_SMTP_PASSWORD", ""),
		AlertFromAddress:  getEnv("ALERT_FROM_ADDRESS", ""),
		AlertToAddress:    getEnv("ALERT_TO_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.KommoSubdomain == "" || cfg.KommoAccessToken == "" {
		return nil, fmt.Errorf("KOMMO_SUBDOMAIN and KOMMO_ACCESS_TOKEN are required")
	}
	if cfg.ClickLogTTL <= 0 {
		return nil, fmt.Errorf("CLICK_LOG_TTL must be a positive duration")
	}
	if cfg.AdsEnabled && cfg.AdsDeveloperToken == "" {
		return nil, fmt.Errorf("GOOGLE_ADS_DEVELOPER_TOKEN is required when GOOGLE_ADS_ENABLED is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// parseStageMap parses "message_received=123:456;converted_lead=142" into a
// conversion-type to qualifying-status-ID mapping.
func parseStageMap(value string) map[string][]int64 {
	result := make(map[string][]int64)
	for _, pair := range strings.Split(value, ";") {
		key, rawIDs, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || key == "" {
			continue
		}
		var ids []int64
		for _, rawID := range strings.Split(rawIDs, ":") {
			id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
			if err != nil || id == 0 {
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			result[key] = ids
		}
	}
	return result
}
