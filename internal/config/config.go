package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env-default:"info"`
	HTTPPort string `yaml:"http-port" env-default:"9090"`
	Redis    Redis  `yaml:"redis"`
	Stream   Stream `yaml:"stream"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

// Stream - tuning for the per-client updates stream: how often the store is
// re-read, and how far the retry delay may stretch when reads keep failing.
type Stream struct {
	PollInterval string `yaml:"poll-interval" env-default:"1s"`
	MaxBackoff   string `yaml:"max-backoff" env-default:"30s"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Stream) GetPollInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(that.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll-interval: %w", err)
	}

	return interval, nil
}

func (that *Stream) GetMaxBackoff() (time.Duration, error) {
	maxBackoff, err := time.ParseDuration(that.MaxBackoff)
	if err != nil {
		return 0, fmt.Errorf("invalid max-backoff: %w", err)
	}

	return maxBackoff, nil
}
