package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Telegram      struct {
		Token string `json:"token"`
	} `json:"telegram"`
	Paystack struct {
		SecretKey   string `json:"secret_key"`
		BaseURL     string `json:"base_url"`
		CallbackURL string `json:"callback_url"`
	} `json:"paystack"`
	Drive struct {
		APIKey string `json:"api_key"`
		// Folders maps a supported region name to its catalog folder id.
		// A region with no folder is not supported.
		Folders map[string]string `json:"folders"`
	} `json:"drive"`
	Security struct {
		// EncryptionKey is the base64-encoded 32-byte AES key sealing
		// contact info. Startup fails if it is missing or malformed.
		EncryptionKey string `json:"encryption_key"`
		AdminID       string `json:"admin_id"`
	} `json:"security"`
	Pricing struct {
		AmountKobo int64 `json:"amount_kobo"`
	} `json:"pricing"`
	Quota struct {
		MaxAccess       int `json:"max_access"`
		CooldownMinutes int `json:"cooldown_minutes"`
	} `json:"quota"`
	Sessions struct {
		IdleTTLMinutes        int `json:"idle_ttl_minutes"`
		PendingUnlockTTLHours int `json:"pending_unlock_ttl_hours"`
	} `json:"sessions"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".jayybot"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.Paystack.BaseURL = "https://api.paystack.co"
	cfg.Drive.Folders = map[string]string{}
	cfg.Pricing.AmountKobo = 5000
	cfg.Quota.MaxAccess = 3
	cfg.Quota.CooldownMinutes = 5
	cfg.Sessions.IdleTTLMinutes = 15
	cfg.Sessions.PendingUnlockTTLHours = 24
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = ":8090"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if key := os.Getenv("PAYSTACK_SECRET_KEY"); key != "" {
		cfg.Paystack.SecretKey = key
	}
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		cfg.Security.EncryptionKey = key
	}
	if id := os.Getenv("ADMIN_USER_ID"); id != "" {
		cfg.Security.AdminID = id
	}
	if key := os.Getenv("DRIVE_API_KEY"); key != "" {
		cfg.Drive.APIKey = key
	}

	return cfg, nil
}

// Validate checks the fields the engine cannot run without. It is called at
// serve time so that misconfiguration is fatal at startup, never at request
// time.
func (c *Config) Validate() error {
	key, err := base64.StdEncoding.DecodeString(c.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("security.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	if c.Security.AdminID == "" {
		return fmt.Errorf("security.admin_id is required")
	}
	if c.Paystack.SecretKey == "" {
		return fmt.Errorf("paystack.secret_key is required")
	}
	if c.Pricing.AmountKobo <= 0 {
		return fmt.Errorf("pricing.amount_kobo must be > 0")
	}
	if c.Quota.MaxAccess <= 0 {
		return fmt.Errorf("quota.max_access must be > 0")
	}
	return nil
}

// EncryptionKey returns the decoded AES key. Validate must have passed.
func (c *Config) EncryptionKey() []byte {
	key, _ := base64.StdEncoding.DecodeString(c.Security.EncryptionKey)
	return key
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
