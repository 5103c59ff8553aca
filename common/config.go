package common

type Config struct {
	// RollupConfigPath is the JSON or TOML file describing the chain (genesis,
	// block time, hardfork activations). The --rollup-cfg flag overrides it
	RollupConfigPath string `mapstructure:"RollupConfigPath"`
	// DataDir is where the node keeps its local files
	DataDir string `mapstructure:"DataDir"`
}
