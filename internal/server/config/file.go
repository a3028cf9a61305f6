package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// strings such as "10m" or integer nanoseconds. Absent keys leave the
// corresponding Config field untouched.
type FileConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	MetricsAddr                  string         `json:"metrics_addr" yaml:"metrics_addr"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	ClockSkew                    timex.Duration `json:"clock_skew" yaml:"clock_skew"`
	VerificationCodeTTL          timex.Duration `json:"verification_code_ttl" yaml:"verification_code_ttl"`
	ResendInterval               timex.Duration `json:"resend_interval" yaml:"resend_interval"`
	UnverifiedGracePeriod        timex.Duration `json:"unverified_grace_period" yaml:"unverified_grace_period"`
	SweepInterval                timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	SweepBatchSize               int            `json:"sweep_batch_size" yaml:"sweep_batch_size"`
	RedisAddr                    string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword                string         `json:"redis_password" yaml:"redis_password"`
	VerifyMaxAttempts            int            `json:"verify_max_attempts" yaml:"verify_max_attempts"`
	VerifyAttemptWindow          timex.Duration `json:"verify_attempt_window" yaml:"verify_attempt_window"`
	NATSURL                      string         `json:"nats_url" yaml:"nats_url"`
	DeliverySubject              string         `json:"delivery_subject" yaml:"delivery_subject"`
	DefaultPhoneRegion           string         `json:"default_phone_region" yaml:"default_phone_region"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays the file named by -c / -config onto config. Files ending
// in .yaml or .yml are decoded as YAML, everything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ClockSkew, c.ClockSkew)
	setDuration(&config.VerificationCodeTTL, c.VerificationCodeTTL)
	setDuration(&config.ResendInterval, c.ResendInterval)
	setDuration(&config.UnverifiedGracePeriod, c.UnverifiedGracePeriod)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setInt(&config.SweepBatchSize, c.SweepBatchSize)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.VerifyMaxAttempts, c.VerifyMaxAttempts)
	setDuration(&config.VerifyAttemptWindow, c.VerifyAttemptWindow)
	setString(&config.NATSURL, c.NATSURL)
	setString(&config.DeliverySubject, c.DeliverySubject)
	setString(&config.DefaultPhoneRegion, c.DefaultPhoneRegion)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
