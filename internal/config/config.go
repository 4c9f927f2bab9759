package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port                string   `yaml:"port" env:"PORT" env-default:"5000"`
	RedisURL            string   `yaml:"redis_url" env:"REDIS_URL"`
	CacheTTLSec         int      `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"300"`
	CryptoTTLSec        int      `yaml:"crypto_ttl" env:"CRYPTO_TTL" env-default:"120"`
	PortalHTMLTTLSec    int      `yaml:"portal_html_ttl" env:"PORTAL_HTML_TTL" env-default:"60"`
	RequestTimeoutSec   int      `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"10"`
	RateLimitPerMin     int      `yaml:"rate_limit_per_min" env:"RATE_LIMIT_PER_MIN" env-default:"0"`
	CircuitFailLimit    int      `yaml:"circuit_fail_limit" env:"CIRCUIT_FAIL_LIMIT" env-default:"3"`
	CircuitCooldownSec  int      `yaml:"circuit_cooldown" env:"CIRCUIT_COOLDOWN" env-default:"30"`
	WarmIntervalSec     int      `yaml:"warm_interval" env:"WARM_INTERVAL" env-default:"0"`
	ShutdownTimeoutSec  int      `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10"`
	ResponseDeadlineSec int      `yaml:"response_deadline" env:"RESPONSE_DEADLINE" env-default:"0"`
	MaxCards            int      `yaml:"max_cards" env:"MAX_CARDS" env-default:"10"`
	Timezone            string   `yaml:"timezone" env:"TIMEZONE" env-default:"Asia/Seoul"`
	FXSources           []string `yaml:"fx_sources" env:"FX_SOURCES" env-separator:"," env-default:"portal,dunamu,naver"`
	PortalURL           string   `yaml:"portal_url" env:"PORTAL_URL" env-default:"https://stock.mk.co.kr/"`
	BithumbURL          string   `yaml:"bithumb_url" env:"BITHUMB_URL" env-default:"https://api.bithumb.com/public/ticker/ALL_KRW"`
	DunamuURL           string   `yaml:"dunamu_url" env:"DUNAMU_URL" env-default:"https://quotation-api-cdn.dunamu.com/v1/forex/recent"`
	NaverURL            string   `yaml:"naver_url" env:"NAVER_URL" env-default:"https://finance.naver.com/marketindex/"`
	LogLevel            string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat           string   `yaml:"log_format" env:"LOG_FORMAT" env-default:"console"`
}

// Load reads the config from the environment. When CONFIG_PATH names a YAML
// file it is read first and environment variables override it.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env config: %w", err)
	}
	return cfg, nil
}

func (c Config) CacheTTL() time.Duration       { return seconds(c.CacheTTLSec, 300) }
func (c Config) CryptoTTL() time.Duration      { return seconds(c.CryptoTTLSec, 120) }
func (c Config) PortalHTMLTTL() time.Duration  { return seconds(c.PortalHTMLTTLSec, 60) }
func (c Config) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSec, 10) }
func (c Config) CircuitCooldown() time.Duration {
	return seconds(c.CircuitCooldownSec, 30)
}
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.ShutdownTimeoutSec, 10)
}

// WarmInterval is zero when background warming is disabled.
func (c Config) WarmInterval() time.Duration {
	if c.WarmIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.WarmIntervalSec) * time.Second
}

// ResponseDeadline bounds a whole skill request; zero leaves only the
// per-call upstream timeout.
func (c Config) ResponseDeadline() time.Duration {
	if c.ResponseDeadlineSec <= 0 {
		return 0
	}
	return time.Duration(c.ResponseDeadlineSec) * time.Second
}

// Location falls back to UTC when the configured zone cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seconds(v int, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
