package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellomail/internal/security/secretbox"
)

// EmailConfig son los datos del servidor SMTP y del remitente.
// Se construye una vez al arrancar y es de solo lectura después.
type EmailConfig struct {
	FromName          string `yaml:"from_name"`
	FromAddress       string `yaml:"from_address"`
	LocalDomain       string `yaml:"local_domain"` // nombre enviado en EHLO
	MailServerAddress string `yaml:"mail_server_address"`
	MailServerPort    string `yaml:"mail_server_port"` // numérico, llega como texto desde env
	UserID            string `yaml:"user_id"`
	UserPassword      string `yaml:"user_password"`

	TLSMode            string        `yaml:"tls"`                  // auto | starttls | ssl | none
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // sólo dev
	Timeout            time.Duration `yaml:"timeout"`
}

// Port parsea MailServerPort.
func (e EmailConfig) Port() (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(e.MailServerPort))
	if err != nil {
		return 0, fmt.Errorf("mail server port %q: %w", e.MailServerPort, err)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("mail server port %d out of range", p)
	}
	return p, nil
}

// RequireSMTP verifica que estén los campos necesarios para abrir una sesión.
func (e EmailConfig) RequireSMTP() error {
	var missing []string
	if strings.TrimSpace(e.MailServerAddress) == "" {
		missing = append(missing, "EMAIL_MAIL_SERVER_ADDRESS")
	}
	if strings.TrimSpace(e.MailServerPort) == "" {
		missing = append(missing, "EMAIL_MAIL_SERVER_PORT")
	}
	if strings.TrimSpace(e.FromAddress) == "" {
		missing = append(missing, "EMAIL_FROM_ADDRESS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("smtp config incompleta, faltan: %s", strings.Join(missing, ", "))
	}
	_, err := e.Port()
	return err
}

type Config struct {
	App struct {
		Env      string `yaml:"app_env"` // dev | prod
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Email EmailConfig `yaml:"email"`

	Frontend struct {
		URL string `yaml:"url"` // base de los links de activación/reset
	} `yaml:"frontend"`

	Templates struct {
		Dir      string        `yaml:"dir"` // vacío => themes embebidos
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"templates"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
	} `yaml:"security"`

	// Rate limita /v1/mail/send por destinatario. Max <= 0 lo desactiva.
	Rate struct {
		Driver string        `yaml:"driver"` // memory | redis
		Max    int           `yaml:"max"`
		Window time.Duration `yaml:"window"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"rate"`
}

// Load lee el YAML (si path no es vacío), aplica defaults y overrides por env.
// Con path vacío la configuración sale sólo del entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	// templates relativos al YAML, no al cwd
	if path != "" && c.Templates.Dir != "" && !filepath.IsAbs(c.Templates.Dir) {
		c.Templates.Dir = filepath.Clean(filepath.Join(filepath.Dir(path), c.Templates.Dir))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Email.TLSMode == "" {
		c.Email.TLSMode = "auto"
	}
	if c.Email.Timeout == 0 {
		c.Email.Timeout = 10 * time.Second
	}
	if c.Templates.CacheTTL == 0 {
		c.Templates.CacheTTL = 5 * time.Minute
	}
	if c.Rate.Driver == "" {
		c.Rate.Driver = "memory"
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = 10 * time.Minute
	}
	// Guardia: en prod nunca se saltea la verificación del certificado.
	if strings.EqualFold(c.App.Env, "prod") {
		c.Email.InsecureSkipVerify = false
	}
}

// Validate chequea formato; la presencia de los datos SMTP se valida
// con EmailConfig.RequireSMTP sólo donde se envía.
func (c *Config) Validate() error {
	var errs []error
	switch c.Email.TLSMode {
	case "auto", "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("email.tls %q: esperado auto|starttls|ssl|none", c.Email.TLSMode))
	}
	if strings.TrimSpace(c.Email.MailServerPort) != "" {
		if _, err := c.Email.Port(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Email.Timeout < 0 {
		errs = append(errs, errors.New("email.timeout must be >= 0"))
	}
	if u := strings.TrimSpace(c.Frontend.URL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || pu.Scheme == "" || pu.Host == "" {
			errs = append(errs, fmt.Errorf("frontend.url %q: se espera URL absoluta", u))
		}
	}
	switch c.Rate.Driver {
	case "memory":
	case "redis":
		if c.Rate.Max > 0 && strings.TrimSpace(c.Rate.Redis.Addr) == "" {
			errs = append(errs, errors.New("rate.redis.addr is required with rate.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate.driver %q: esperado memory|redis", c.Rate.Driver))
	}
	if c.Rate.Window < 0 {
		errs = append(errs, errors.New("rate.window must be >= 0"))
	}
	return errors.Join(errs...)
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides pisa el YAML con variables de entorno.
// Los nombres EMAIL_* son los que ya usaban los despliegues existentes.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// EMAIL
	if v, ok := getEnvStr("EMAIL_FROM_NAME"); ok {
		c.Email.FromName = v
	}
	if v, ok := getEnvStr("EMAIL_FROM_ADDRESS"); ok {
		c.Email.FromAddress = v
	}
	if v, ok := getEnvStr("EMAIL_LOCAL_DOMAIN"); ok {
		c.Email.LocalDomain = v
	}
	if v, ok := getEnvStr("EMAIL_MAIL_SERVER_ADDRESS"); ok {
		c.Email.MailServerAddress = v
	}
	if v, ok := getEnvStr("EMAIL_MAIL_SERVER_PORT"); ok {
		c.Email.MailServerPort = v
	}
	if v, ok := getEnvStr("EMAIL_USER_ID"); ok {
		c.Email.UserID = v
	}
	if v, ok := getEnvStr("EMAIL_USER_PASSWORD"); ok {
		c.Email.UserPassword = v
	}
	if v, ok := getEnvStr("EMAIL_TLS"); ok {
		c.Email.TLSMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvBool("EMAIL_INSECURE_SKIP_VERIFY"); ok {
		c.Email.InsecureSkipVerify = v
	}
	if v, ok := getEnvDur("EMAIL_TIMEOUT"); ok {
		c.Email.Timeout = v
	}

	// TEMPLATES
	if v, ok := getEnvStr("EMAIL_TEMPLATES_DIR"); ok {
		c.Templates.Dir = v
	}
	if v, ok := getEnvDur("EMAIL_TEMPLATES_CACHE_TTL"); ok {
		c.Templates.CacheTTL = v
	}

	// FRONTEND
	if v, ok := getEnvStr("FRONTEND_URL"); ok {
		c.Frontend.URL = v
	}

	// SECURITY
	if v, ok := getEnvStr(secretbox.EnvMasterKey); ok {
		c.Security.SecretBoxMasterKey = v
	}

	// RATE
	if v, ok := getEnvStr("RATE_LIMIT_DRIVER"); ok {
		c.Rate.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.Rate.Max = v
	}
	if v, ok := getEnvDur("RATE_LIMIT_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Rate.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
}
