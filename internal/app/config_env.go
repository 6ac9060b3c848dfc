package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix namespaces every environment variable the application reads.
const EnvPrefix = "PAGEBRIDGE_"

func getenv(key string) string { return strings.TrimSpace(os.Getenv(EnvPrefix + key)) }

// envFields lists the string, float, duration and int settings by their
// environment key suffix.
func envFields(cfg *Config) (strs map[string]*string, floats map[string]*float64, durs map[string]*time.Duration, ints map[string]*int, bools map[string]*bool) {
	strs = map[string]*string{
		"PAGE_FILE":       &cfg.PageFile,
		"PAGE_URL":        &cfg.PageURL,
		"PAGE_BASE":       &cfg.PageBase,
		"BACKEND":         &cfg.Backend,
		"ROD_URL":         &cfg.RodControlURL,
		"LAYOUT_ATTR":     &cfg.LayoutAttr,
		"SANITIZE_POLICY": &cfg.SanitizePolicy,
		"USER_AGENT":      &cfg.FetchUserAgent,
		"CACHE_DIR":       &cfg.CacheDir,
	}
	floats = map[string]*float64{
		"VIEWPORT_DPR":          &cfg.Viewport.DPR,
		"VIEWPORT_INNER_WIDTH":  &cfg.Viewport.InnerWidth,
		"VIEWPORT_OUTER_WIDTH":  &cfg.Viewport.OuterWidth,
		"VIEWPORT_INNER_HEIGHT": &cfg.Viewport.InnerHeight,
		"VIEWPORT_OUTER_HEIGHT": &cfg.Viewport.OuterHeight,
		"GESTURE_THRESHOLD":     &cfg.GestureThreshold,
	}
	durs = map[string]*time.Duration{
		"GESTURE_DELAY": &cfg.GestureDelay,
		"FETCH_TIMEOUT": &cfg.FetchTimeout,
		"CACHE_MAX_AGE": &cfg.CacheMaxAge,
	}
	ints = map[string]*int{
		"FETCH_ATTEMPTS": &cfg.FetchAttempts,
	}
	bools = map[string]*bool{
		"VERBOSE":            &cfg.Verbose,
		"CACHE_CLEAR":        &cfg.CacheClear,
		"CACHE_STRICT_PERMS": &cfg.CacheStrictPerms,
	}
	return
}

// ApplyEnvToConfig populates unset fields of cfg from PAGEBRIDGE_*
// environment variables. Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, false)
}

// ApplyEnvOverrides overrides cfg fields with environment variables when they
// are set. It lets env take precedence over a config file while flags parsed
// afterwards remain highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	applyEnv(cfg, true)
}

func applyEnv(cfg *Config, force bool) {
	strs, floats, durs, ints, bools := envFields(cfg)
	for key, dst := range strs {
		if v := getenv(key); v != "" && (force || *dst == "") {
			*dst = v
		}
	}
	for key, dst := range floats {
		if v := getenv(key); v != "" && (force || *dst == 0) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	for key, dst := range durs {
		if v := getenv(key); v != "" && (force || *dst == 0) {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" && (force || *dst == 0) {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	for key, dst := range bools {
		switch strings.ToLower(getenv(key)) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			if force {
				*dst = false
			}
		}
	}
}
