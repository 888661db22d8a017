package config

const (
	// Token Related
	NanoPerQFC         = 1e9
	InitialTotalSupply = 100_000_000 // 100 million QFC

	// Staking Related
	MinimumStakeAmount = 50 * NanoPerQFC
	BaseBlockReward    = 2 * NanoPerQFC

	// Sharding Related
	DefaultShardCount    = 4
	DefaultShardCapacity = 10_000
	DefaultLoadThreshold = 0.8

	// Consensus Related
	DefaultMaxDelegates      = 21
	DefaultEnergyThreshold   = 0.2 // minimum verified renewable score
	DefaultMaxAdjustmentStep = 0.1
	TargetBlockIntervalSecs  = 10

	DefaultGasFee int = 1_000_000 // 0.001 QFC
	MinGasFee     int = 10_000
)
