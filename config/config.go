// Package config loads the ldapauthd configuration from a YAML file and
// LDAPAUTH_ prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	ldap "github.com/xonoko/ldapauth"
	"github.com/xonoko/ldapauth/auth"
)

type LDAPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ProtocolVersion    int           `mapstructure:"protocol_version"`
	BaseDN             string        `mapstructure:"base_dn"`
	StartTLS           bool          `mapstructure:"start_tls"`
	HideErrors         bool          `mapstructure:"hide_errors"`
	CommonBindDN       string        `mapstructure:"common_bind_dn"`
	CommonBindPassword string        `mapstructure:"common_bind_password"`
	Insecure           bool          `mapstructure:"insecure"`
	CustomCA           string        `mapstructure:"custom_ca"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type FieldsConfig struct {
	Username string `mapstructure:"username"`
}

type AuthConfig struct {
	SearchFilter    string       `mapstructure:"search_filter"`
	BindDN          string       `mapstructure:"bind_dn"`
	QueryDatasource bool         `mapstructure:"query_datasource"`
	UserModel       string       `mapstructure:"user_model"`
	Fields          FieldsConfig `mapstructure:"fields"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config holds all configuration for ldapauthd.
type Config struct {
	LDAP   LDAPConfig   `mapstructure:"ldap"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Server ServerConfig `mapstructure:"server"`

	DatabaseURL string        `mapstructure:"database_url"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	LogLevel    string        `mapstructure:"log_level"`
}

// Load reads path when it is not empty, then applies environment overrides.
// LDAPAUTH_LDAP_HOST overrides ldap.host.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	v.SetEnvPrefix("LDAPAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

// Every key needs a default, AutomaticEnv only overrides keys viper knows.
func setDefaults(v *viper.Viper) {
	defaultAuth := auth.DefaultConfig()

	v.SetDefault("ldap.host", "")
	v.SetDefault("ldap.port", ldap.DefaultPort)
	v.SetDefault("ldap.protocol_version", ldap.DefaultProtocolVersion)
	v.SetDefault("ldap.base_dn", "")
	v.SetDefault("ldap.start_tls", false)
	v.SetDefault("ldap.hide_errors", false)
	v.SetDefault("ldap.common_bind_dn", "")
	v.SetDefault("ldap.common_bind_password", "")
	v.SetDefault("ldap.insecure", false)
	v.SetDefault("ldap.custom_ca", "")
	v.SetDefault("ldap.timeout", 10*time.Second)

	v.SetDefault("auth.search_filter", "")
	v.SetDefault("auth.bind_dn", "")
	v.SetDefault("auth.query_datasource", defaultAuth.QueryDatasource)
	v.SetDefault("auth.user_model", defaultAuth.UserModel)
	v.SetDefault("auth.fields.username", defaultAuth.Fields.Username)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("log_level", "info")
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.LDAP.Host) == "" {
		return errors.New("ldap.host is required")
	}
	if cfg.LDAP.BaseDN == "" {
		return errors.New("ldap.base_dn is required")
	}
	if cfg.Auth.BindDN == "" {
		return errors.New("auth.bind_dn is required")
	}
	if cfg.Auth.SearchFilter == "" {
		return errors.New("auth.search_filter is required")
	}
	if cfg.Auth.QueryDatasource && cfg.DatabaseURL == "" {
		return errors.New("database_url is required when auth.query_datasource is set")
	}
	if cfg.CacheTTL < 0 {
		return errors.Errorf("cache_ttl must not be negative, got %s", cfg.CacheTTL)
	}
	return nil
}

// Directory builds the client configuration.
func (c *Config) Directory() ldap.Config {
	return ldap.Config{
		Host:               c.LDAP.Host,
		Port:               c.LDAP.Port,
		ProtocolVersion:    c.LDAP.ProtocolVersion,
		BaseDN:             c.LDAP.BaseDN,
		StartTLS:           c.LDAP.StartTLS,
		HideErrors:         c.LDAP.HideErrors,
		Insecure:           c.LDAP.Insecure,
		CustomCA:           c.LDAP.CustomCA,
		Timeout:            c.LDAP.Timeout,
		CommonBindDN:       c.LDAP.CommonBindDN,
		CommonBindPassword: c.LDAP.CommonBindPassword,
		Auth: ldap.AuthConfig{
			SearchFilter: c.Auth.SearchFilter,
			BindDN:       c.Auth.BindDN,
		},
	}
}

// Authenticator builds the adapter configuration. The callback is left to
// embedding programs.
func (c *Config) Authenticator() auth.Config {
	return auth.Config{
		QueryDatasource: c.Auth.QueryDatasource,
		UserModel:       c.Auth.UserModel,
		Fields:          auth.Fields{Username: c.Auth.Fields.Username},
	}
}
