package flock

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// Config is the experiment file shared by the coordinator and the
// participants taking part in one run.
type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Participant ParticipantConfig `toml:"participant"`
	Strategy    StrategyConfig    `toml:"strategy"`
}

type CoordinatorConfig struct {
	MQTTAddress string `toml:"mqtt_address"`
	HTTPAddress string `toml:"http_address"`
	Rounds      uint64 `toml:"rounds"`
}

type ParticipantConfig struct {
	ClientID    string `toml:"client_id"`
	MQTTAddress string `toml:"mqtt_address"`
}

type StrategyConfig struct {
	FractionFit         float64 `toml:"fraction_fit"`
	FractionEvaluate    float64 `toml:"fraction_evaluate"`
	MinFitClients       int     `toml:"min_fit_clients"`
	MinEvaluateClients  int     `toml:"min_evaluate_clients"`
	MinAvailableClients int     `toml:"min_available_clients"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
