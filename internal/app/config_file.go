package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Backend struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"backend" json:"backend"`

	Account struct {
		Email          string `yaml:"email" json:"email"`
		Password       string `yaml:"password" json:"password"`
		ExpectedUserID string `yaml:"expectedUserId" json:"expectedUserId"`
	} `yaml:"account" json:"account"`

	Table       string `yaml:"table" json:"table"`
	RPCFunction string `yaml:"rpcFunction" json:"rpcFunction"`

	Contact struct {
		Street      string `yaml:"street" json:"street"`
		HouseNumber string `yaml:"houseNumber" json:"houseNumber"`
		City        string `yaml:"city" json:"city"`
		Units       string `yaml:"units" json:"units"`
		Status      string `yaml:"status" json:"status"`
	} `yaml:"contact" json:"contact"`

	Wait           Duration `yaml:"wait" json:"wait"`
	RequestTimeout Duration `yaml:"requestTimeout" json:"requestTimeout"`
	Verbose        bool     `yaml:"verbose" json:"verbose"`
}

// Duration accepts Go duration strings ("10s", "1m30s") in YAML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs before
// environment and flag overrides, so the file only replaces defaults.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setString(&cfg.BackendURL, fc.Backend.URL)
	setString(&cfg.APIKey, fc.Backend.Key)
	setString(&cfg.Email, fc.Account.Email)
	setString(&cfg.Password, fc.Account.Password)
	setString(&cfg.ExpectedUserID, fc.Account.ExpectedUserID)
	setString(&cfg.Table, fc.Table)
	setString(&cfg.RPCFunction, fc.RPCFunction)
	setString(&cfg.ContactStreet, fc.Contact.Street)
	setString(&cfg.ContactHouseNumber, fc.Contact.HouseNumber)
	setString(&cfg.ContactCity, fc.Contact.City)
	setString(&cfg.ContactUnits, fc.Contact.Units)
	setString(&cfg.ContactStatus, fc.Contact.Status)

	if fc.Wait > 0 {
		cfg.Wait = time.Duration(fc.Wait)
	}
	if fc.RequestTimeout > 0 {
		cfg.RequestTimeout = time.Duration(fc.RequestTimeout)
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal validation of required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return errors.New("config: backend url is required (or set SUPABASE_URL)")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return errors.New("config: backend key is required (or set SUPABASE_ANON_KEY)")
	}
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return errors.New("config: account email and password are required (or set SMOKE_EMAIL/SMOKE_PASSWORD)")
	}
	if strings.TrimSpace(cfg.Table) == "" || strings.TrimSpace(cfg.RPCFunction) == "" {
		return errors.New("config: table and rpc function must not be empty")
	}
	if cfg.Wait < 0 || cfg.RequestTimeout < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	return nil
}
