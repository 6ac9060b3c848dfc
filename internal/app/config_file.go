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

	"github.com/hyperifyio/pagebridge/internal/extract"
)

// FileConfig represents the single-file configuration schema. Sections
// mirror the dotted flag names.
type FileConfig struct {
	Page struct {
		File string `yaml:"file" json:"file"`
		URL  string `yaml:"url" json:"url"`
		Base string `yaml:"base" json:"base"`
	} `yaml:"page" json:"page"`

	Backend string `yaml:"backend" json:"backend"`

	Rod struct {
		ControlURL string `yaml:"controlURL" json:"controlURL"`
	} `yaml:"rod" json:"rod"`

	Layout struct {
		Attr string `yaml:"attr" json:"attr"`
	} `yaml:"layout" json:"layout"`

	Viewport struct {
		DPR         float64 `yaml:"dpr" json:"dpr"`
		InnerWidth  float64 `yaml:"innerWidth" json:"innerWidth"`
		OuterWidth  float64 `yaml:"outerWidth" json:"outerWidth"`
		InnerHeight float64 `yaml:"innerHeight" json:"innerHeight"`
		OuterHeight float64 `yaml:"outerHeight" json:"outerHeight"`
	} `yaml:"viewport" json:"viewport"`

	Gesture struct {
		Delay     time.Duration `yaml:"delay" json:"delay"`
		Threshold float64       `yaml:"threshold" json:"threshold"`
	} `yaml:"gesture" json:"gesture"`

	Sanitize struct {
		Policy string `yaml:"policy" json:"policy"`
	} `yaml:"sanitize" json:"sanitize"`

	Fetch struct {
		UserAgent string        `yaml:"userAgent" json:"userAgent"`
		Timeout   time.Duration `yaml:"timeout" json:"timeout"`
		Attempts  int           `yaml:"attempts" json:"attempts"`
	} `yaml:"fetch" json:"fetch"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
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
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc onto cfg wherever cfg still holds
// its zero value or the flag default, so explicit flags win.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()

	setString := func(dst *string, dflt, v string) {
		if v != "" && (*dst == "" || *dst == dflt) {
			*dst = v
		}
	}
	setFloat := func(dst *float64, dflt, v float64) {
		if v > 0 && (*dst == 0 || *dst == dflt) {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, dflt, v time.Duration) {
		if v > 0 && (*dst == 0 || *dst == dflt) {
			*dst = v
		}
	}

	setString(&cfg.PageFile, "", fc.Page.File)
	setString(&cfg.PageURL, "", fc.Page.URL)
	setString(&cfg.PageBase, "", fc.Page.Base)
	setString(&cfg.Backend, def.Backend, fc.Backend)
	setString(&cfg.RodControlURL, "", fc.Rod.ControlURL)
	setString(&cfg.LayoutAttr, def.LayoutAttr, fc.Layout.Attr)

	setFloat(&cfg.Viewport.DPR, def.Viewport.DPR, fc.Viewport.DPR)
	setFloat(&cfg.Viewport.InnerWidth, def.Viewport.InnerWidth, fc.Viewport.InnerWidth)
	setFloat(&cfg.Viewport.OuterWidth, def.Viewport.OuterWidth, fc.Viewport.OuterWidth)
	setFloat(&cfg.Viewport.InnerHeight, def.Viewport.InnerHeight, fc.Viewport.InnerHeight)
	setFloat(&cfg.Viewport.OuterHeight, def.Viewport.OuterHeight, fc.Viewport.OuterHeight)

	setDuration(&cfg.GestureDelay, def.GestureDelay, fc.Gesture.Delay)
	setFloat(&cfg.GestureThreshold, def.GestureThreshold, fc.Gesture.Threshold)
	setString(&cfg.SanitizePolicy, def.SanitizePolicy, fc.Sanitize.Policy)

	setString(&cfg.FetchUserAgent, def.FetchUserAgent, fc.Fetch.UserAgent)
	setDuration(&cfg.FetchTimeout, def.FetchTimeout, fc.Fetch.Timeout)
	if fc.Fetch.Attempts > 0 && (cfg.FetchAttempts == 0 || cfg.FetchAttempts == def.FetchAttempts) {
		cfg.FetchAttempts = fc.Fetch.Attempts
	}

	setString(&cfg.CacheDir, def.CacheDir, fc.Cache.Dir)
	setDuration(&cfg.CacheMaxAge, def.CacheMaxAge, fc.Cache.MaxAge)
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig checks that a page source matching the backend is set and
// that enumerated and numeric settings are in range.
func ValidateConfig(cfg Config) error {
	switch cfg.Backend {
	case BackendStatic, "":
		if strings.TrimSpace(cfg.PageFile) == "" && strings.TrimSpace(cfg.PageURL) == "" {
			return errors.New("config: page.file or page.url is required")
		}
		if cfg.PageFile != "" && cfg.PageURL != "" {
			return errors.New("config: page.file and page.url are mutually exclusive")
		}
	case BackendRod:
		if strings.TrimSpace(cfg.PageURL) == "" {
			return errors.New("config: page.url is required for the rod backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want static or rod)", cfg.Backend)
	}
	if _, err := extract.ParsePolicy(cfg.SanitizePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.GestureDelay < 0 || cfg.GestureThreshold < 0 {
		return errors.New("config: gesture settings must not be negative")
	}
	if cfg.FetchAttempts < 0 || cfg.FetchTimeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative fetch or cache limits are not allowed")
	}
	vp := cfg.Viewport
	if vp.DPR < 0 || vp.InnerWidth < 0 || vp.OuterWidth < 0 || vp.InnerHeight < 0 || vp.OuterHeight < 0 {
		return errors.New("config: viewport metrics must not be negative")
	}
	return nil
}
