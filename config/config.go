package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string `json:"DATA_DIR"`

	ShardCount    int     `json:"SHARD_COUNT"`
	ShardCapacity int     `json:"SHARD_CAPACITY"`
	LoadThreshold float64 `json:"LOAD_THRESHOLD"`

	MinStake   int64 `json:"MIN_STAKE"`
	BaseReward int64 `json:"BASE_REWARD"`

	MaxDelegates      int     `json:"MAX_DELEGATES"`
	EnergyThreshold   float64 `json:"ENERGY_THRESHOLD"`
	ConsensusQuorum   int     `json:"CONSENSUS_QUORUM"`
	MaxAdjustmentStep float64 `json:"MAX_ADJUSTMENT_STEP"`

	WorkWeight      float64 `json:"WORK_WEIGHT"`
	StakeWeight     float64 `json:"STAKE_WEIGHT"`
	DelegatedWeight float64 `json:"DELEGATED_WEIGHT"`
	EnergyWeight    float64 `json:"ENERGY_WEIGHT"`
}

// DefaultConfig returns a runnable configuration with equal strategy
// weights.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           "./data",
		ShardCount:        DefaultShardCount,
		ShardCapacity:     DefaultShardCapacity,
		LoadThreshold:     DefaultLoadThreshold,
		MinStake:          MinimumStakeAmount,
		BaseReward:        BaseBlockReward,
		MaxDelegates:      DefaultMaxDelegates,
		EnergyThreshold:   DefaultEnergyThreshold,
		MaxAdjustmentStep: DefaultMaxAdjustmentStep,
		WorkWeight:        1,
		StakeWeight:       1,
		DelegatedWeight:   1,
		EnergyWeight:      1,
	}
}

// LoadConfig reads a JSON configuration file and applies environment
// overrides on top. A missing file is not an error; the defaults plus the
// environment apply.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	configFile, err := os.Open(configPath)
	if err == nil {
		defer configFile.Close()
		if err := json.NewDecoder(configFile).Decode(config); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	config.applyEnv()
	return config, nil
}

// LoadEnv loads a .env file into the process environment if one exists.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("QF_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	envInt("QF_SHARD_COUNT", &c.ShardCount)
	envInt("QF_SHARD_CAPACITY", &c.ShardCapacity)
	envFloat("QF_LOAD_THRESHOLD", &c.LoadThreshold)
	envInt64("QF_MIN_STAKE", &c.MinStake)
	envInt64("QF_BASE_REWARD", &c.BaseReward)
	envInt("QF_MAX_DELEGATES", &c.MaxDelegates)
	envFloat("QF_ENERGY_THRESHOLD", &c.EnergyThreshold)
	envInt("QF_CONSENSUS_QUORUM", &c.ConsensusQuorum)
	envFloat("QF_MAX_ADJUSTMENT_STEP", &c.MaxAdjustmentStep)
	envFloat("QF_WORK_WEIGHT", &c.WorkWeight)
	envFloat("QF_STAKE_WEIGHT", &c.StakeWeight)
	envFloat("QF_DELEGATED_WEIGHT", &c.DelegatedWeight)
	envFloat("QF_ENERGY_WEIGHT", &c.EnergyWeight)
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
