package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Player struct {
		Name string `yaml:"name"`
	} `yaml:"player"`
	Match struct {
		Course           string   `yaml:"course"`
		TimeLimitSeconds int      `yaml:"time_limit_seconds"`
		QuestionTypes    []string `yaml:"question_types"`
		Difficulty       string   `yaml:"difficulty"`
	} `yaml:"match"`
	Profile struct {
		Path string `yaml:"path"`
	} `yaml:"profile"`
	API struct {
		CourseTTL string `yaml:"course_ttl"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"api"`
	Transport struct {
		PingInterval string `yaml:"ping_interval"`
	} `yaml:"transport"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the CLI can run on flags and defaults alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
