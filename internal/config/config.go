package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs from the environment. Gateway
// credentials are injected here once at startup; nothing reads os.Getenv
// after Load returns.
type Config struct {
	Port      string
	MongoURI  string
	JWTSecret string

	MpesaBaseURL        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPasskey        string
	MpesaPartyB         string
	MpesaCallbackURL    string

	GroqBaseURL string
	GroqAPIKey  string
}

// Load reads .env (if present) and builds the Config. Missing required keys
// are reported together so a bad deployment fails on the first start.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		MongoURI:  os.Getenv("MONGOURI"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		MpesaBaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaShortCode:      os.Getenv("MPESA_BUSINESS_SHORT_CODE"),
		MpesaPasskey:        os.Getenv("MPESA_PASSKEY"),
		MpesaPartyB:         os.Getenv("MPESA_TILL_NUMBER"),
		MpesaCallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),

		GroqBaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com"),
		GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
	}

	// PartyB defaults to the short code (paybill flow); a till number
	// overrides it for buy-goods.
	if cfg.MpesaPartyB == "" {
		cfg.MpesaPartyB = cfg.MpesaShortCode
	}

	var missing []string
	required := map[string]string{
		"MONGOURI":                  cfg.MongoURI,
		"JWT_SECRET":                cfg.JWTSecret,
		"MPESA_CONSUMER_KEY":        cfg.MpesaConsumerKey,
		"MPESA_CONSUMER_SECRET":     cfg.MpesaConsumerSecret,
		"MPESA_BUSINESS_SHORT_CODE": cfg.MpesaShortCode,
		"MPESA_PASSKEY":             cfg.MpesaPasskey,
		"MPESA_CALLBACK_URL":        cfg.MpesaCallbackURL,
	}
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
