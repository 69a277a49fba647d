// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ericfisherdev/bankfeed/internal/cryptox"
)

// Config holds the application configuration loaded from environment
// variables. Secrets are validated here once, at startup, and passed into
// components explicitly; nothing reads the environment after Load returns.
type Config struct {
	ListenAddr string
	DBPath     string

	// MasterKey is the 32-byte token-at-rest encryption key.
	MasterKey []byte

	// AuthSecret verifies end-user bearer tokens (HS256).
	AuthSecret []byte

	// Enable Banking application identity. The application id doubles as the
	// kid header on the signed provider JWT.
	EBApplicationID string
	EBPrivateKeyPEM []byte
	EBBaseURL       string

	LookbackDays    int
	ProviderTimeout time.Duration
}

// Load reads configuration from the environment and returns a validated
// Config. Required: BANKFEED_MASTER_KEY (base64, 32 bytes decoded),
// BANKFEED_AUTH_SECRET, BANKFEED_EB_APPLICATION_ID,
// BANKFEED_EB_PRIVATE_KEY_FILE. Optional with defaults:
// BANKFEED_LISTEN_ADDR (127.0.0.1:8080), BANKFEED_DB_PATH (bankfeed.db),
// BANKFEED_EB_BASE_URL, BANKFEED_LOOKBACK_DAYS (90),
// BANKFEED_PROVIDER_TIMEOUT (15s).
func Load() (*Config, error) {
	masterKeyRaw := os.Getenv("BANKFEED_MASTER_KEY")
	if masterKeyRaw == "" {
		return nil, fmt.Errorf("BANKFEED_MASTER_KEY is required")
	}
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyRaw)
	if err != nil {
		return nil, fmt.Errorf("BANKFEED_MASTER_KEY is not valid base64: %w", err)
	}
	if len(masterKey) != cryptox.KeySize {
		return nil, fmt.Errorf("BANKFEED_MASTER_KEY must decode to %d bytes, got %d", cryptox.KeySize, len(masterKey))
	}

	authSecret := os.Getenv("BANKFEED_AUTH_SECRET")
	if authSecret == "" {
		return nil, fmt.Errorf("BANKFEED_AUTH_SECRET is required")
	}

	appID := os.Getenv("BANKFEED_EB_APPLICATION_ID")
	if appID == "" {
		return nil, fmt.Errorf("BANKFEED_EB_APPLICATION_ID is required")
	}

	keyFile := os.Getenv("BANKFEED_EB_PRIVATE_KEY_FILE")
	if keyFile == "" {
		return nil, fmt.Errorf("BANKFEED_EB_PRIVATE_KEY_FILE is required")
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read BANKFEED_EB_PRIVATE_KEY_FILE: %w", err)
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("BANKFEED_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "bankfeed.db"
	if v, ok := os.LookupEnv("BANKFEED_DB_PATH"); ok {
		dbPath = v
	}

	baseURL := ""
	if v, ok := os.LookupEnv("BANKFEED_EB_BASE_URL"); ok {
		baseURL = v
	}

	lookbackDays := 90
	if v, ok := os.LookupEnv("BANKFEED_LOOKBACK_DAYS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("BANKFEED_LOOKBACK_DAYS has invalid value %q", v)
		}
		lookbackDays = parsed
	}

	providerTimeout := 15 * time.Second
	if v, ok := os.LookupEnv("BANKFEED_PROVIDER_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BANKFEED_PROVIDER_TIMEOUT has invalid duration %q: %w", v, err)
		}
		providerTimeout = parsed
	}

	return &Config{
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		MasterKey:       masterKey,
		AuthSecret:      []byte(authSecret),
		EBApplicationID: appID,
		EBPrivateKeyPEM: keyPEM,
		EBBaseURL:       baseURL,
		LookbackDays:    lookbackDays,
		ProviderTimeout: providerTimeout,
	}, nil
}
