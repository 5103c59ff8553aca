package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xPolygon/cdk-opnode/common"
	"github.com/0xPolygon/cdk-opnode/driver"
	"github.com/0xPolygon/cdk-opnode/engine"
	"github.com/0xPolygon/cdk-opnode/l1"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/p2p"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/safedb"
	"github.com/0xPolygon/cdk-opnode/sequencer"
	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	// FlagCfg is the flag for cfg.
	FlagCfg = "cfg"
	// FlagRollupCfg is the flag for the rollup chain config file
	FlagRollupCfg = "rollup-cfg"
	// FlagComponents is the flag for components.
	FlagComponents = "components"
	// FlagSaveConfigPath is the flag to save the final configuration file
	FlagSaveConfigPath = "save-config-path"
	// FlagMinConfig prints only the mandatory vars
	FlagMinConfig = "min"
	// FlagSchema prints the JSON schema of the config instead of the defaults
	FlagSchema = "schema"

	deprecatedFieldELSync  = "Driver.ELSync is not read. Use Engine.SyncMode = \"el\" instead."
	deprecatedFieldEnabled = "Sequencer.Enabled is deprecated. Add sequencer to --components instead."

	EnvVarPrefix       = "OPNODE"
	ConfigType         = "toml"
	SaveConfigFileName = "opnode_config.toml"

	DefaultCreationFilePermissions = os.FileMode(0600)
)

type ForbiddenField struct {
	FieldName string
	Reason    string
}

var (
	forbiddenFieldsOnConfig = []ForbiddenField{
		{
			FieldName: "driver.elsync",
			Reason:    deprecatedFieldELSync,
		},
		{
			FieldName: "sequencer.enabled",
			Reason:    deprecatedFieldEnabled,
		},
	}
)

/*
Config represents the configuration of the rollup node.
The file is [TOML format]. The chain itself (genesis, block time, hardforks)
is described by a separate rollup config file, see rollup.LoadConfig.

[TOML format]: https://en.wikipedia.org/wiki/TOML
*/
type Config struct {
	// Configure Log level for all the services, allow also to store the logs in a file
	Log log.Config
	// Common Config that affects all the services
	Common common.Config
	// L1 is the config of the L1 chain watcher
	L1 l1.Config
	// Engine is the config of the execution engine client
	Engine engine.Config
	// Driver is the config of the derivation loop
	Driver driver.Config
	// Sequencer is the config of the block producer, used with the sequencer component
	Sequencer sequencer.Config
	// P2P is the config of the unsafe payload feed
	P2P p2p.Config
	// SafeDB is the config of the safe head database. An empty DBPath disables it
	SafeDB safedb.Config
	// RPC is the config for the RPC server
	RPC jRPC.Config
}

// Load loads the configuration
func Load(ctx *cli.Context) (*Config, error) {
	configFilePath := ctx.StringSlice(FlagCfg)
	filesData, err := readFiles(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading files:  Err:%w", err)
	}
	saveConfigPath := ctx.String(FlagSaveConfigPath)
	cfg, err := LoadFile(filesData, saveConfigPath)
	if err != nil {
		return nil, err
	}
	if rollupCfg := ctx.String(FlagRollupCfg); rollupCfg != "" {
		cfg.Common.RollupConfigPath = rollupCfg
	}
	return cfg, nil
}

// LoadRollupConfig reads the chain config the node derives with.
func (c *Config) LoadRollupConfig() (*rollup.Config, error) {
	if c.Common.RollupConfigPath == "" {
		return nil, fmt.Errorf("missing rollup config file, set Common.RollupConfigPath or --%s", FlagRollupCfg)
	}
	return rollup.LoadConfig(c.Common.RollupConfigPath)
}

func readFiles(files []string) ([]FileData, error) {
	result := make([]FileData, 0, len(files))
	for _, file := range files {
		fileContent, err := readFileToString(file)
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %s. Err:%w", file, err)
		}
		fileExtension := getFileExtension(file)
		if fileExtension != ConfigType {
			fileContent, err = convertFileToToml(fileContent, fileExtension)
			if err != nil {
				return nil, fmt.Errorf("error converting file: %s from %s to TOML. Err:%w", file, fileExtension, err)
			}
		}
		result = append(result, FileData{Name: file, Content: fileContent})
	}
	return result, nil
}

func getFileExtension(fileName string) string {
	return strings.TrimPrefix(filepath.Ext(fileName), ".")
}

// LoadFileFromString decodes an already rendered config
func LoadFileFromString(configFileData string, configType string) (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	expectedKeys, err := defaultKeys(configType)
	if err != nil {
		return nil, err
	}
	err = loadString(v, cfg, configFileData, configType, true, EnvVarPrefix, expectedKeys)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfigToString(cfg Config) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadFile merges the given files over the defaults and decodes the result
func LoadFile(files []FileData, saveConfigPath string) (*Config, error) {
	fileData := make([]FileData, 0, len(files)+2) //nolint:mnd
	fileData = append(fileData, FileData{Name: "default_vars", Content: DefaultVars})
	fileData = append(fileData, FileData{Name: "default_values", Content: DefaultValues})
	fileData = append(fileData, files...)

	renderer := NewRenderer(fileData, EnvVarPrefix)

	renderedCfg, err := renderer.Render()
	if err != nil {
		return nil, err
	}
	if saveConfigPath != "" {
		fullPath := filepath.Join(saveConfigPath, SaveConfigFileName)
		log.Infof("Writing used config to %s", fullPath)
		err = os.WriteFile(fullPath, []byte(renderedCfg), DefaultCreationFilePermissions)
		if err != nil {
			err = fmt.Errorf("error writing config file: %s. Err: %w", fullPath, err)
			log.Error(err)
			return nil, err
		}
	}
	return LoadFileFromString(renderedCfg, ConfigType)
}

// defaultKeys are the keys that have a default value. Any other key on a
// config file is reported.
func defaultKeys(configType string) ([]string, error) {
	rendered, err := NewRenderer([]FileData{
		{Name: "default_mandatory_vars", Content: DefaultMandatoryVars},
		{Name: "default_vars", Content: DefaultVars},
		{Name: "default_values", Content: DefaultValues},
	}, EnvVarPrefix).Render()
	if err != nil {
		return nil, fmt.Errorf("error rendering default values. Err: %w", err)
	}
	v := viper.New()
	v.SetConfigType(configType)
	if err := v.ReadConfig(strings.NewReader(rendered)); err != nil {
		return nil, fmt.Errorf("error reading default values. Err: %w", err)
	}
	return v.AllKeys(), nil
}

func loadString(v *viper.Viper, cfg *Config, configData string, configType string,
	allowEnvVars bool, envPrefix string, expectedKeys []string) error {
	v.SetConfigType(configType)
	if allowEnvVars {
		replacer := strings.NewReplacer(".", "_")
		v.SetEnvKeyReplacer(replacer)
		v.SetEnvPrefix(envPrefix)
		v.AutomaticEnv()
	}
	err := v.ReadConfig(bytes.NewBufferString(configData))
	if err != nil {
		return err
	}
	decodeHooks := []viper.DecoderConfigOption{
		// this allows arrays to be decoded from env var separated by ",", example: MY_VAR="value1,value2,value3"
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(), mapstructure.StringToSliceHookFunc(","))),
	}

	err = v.Unmarshal(&cfg, decodeHooks...)
	if err != nil {
		return err
	}

	for _, field := range getUnexpectedFields(v.AllKeys(), expectedKeys) {
		if forbidden := getForbiddenField(field); forbidden != nil {
			log.Warnf("forbidden field %s in config file: %s", field, forbidden.Reason)
		} else {
			log.Debugf("field %s in config file doesnt have a default value", field)
		}
	}
	return nil
}

func getForbiddenField(fieldName string) *ForbiddenField {
	for _, forbiddenField := range forbiddenFieldsOnConfig {
		if forbiddenField.FieldName == fieldName || strings.HasPrefix(fieldName, forbiddenField.FieldName) {
			return &forbiddenField
		}
	}
	return nil
}

func getUnexpectedFields(keysOnFile, expectedConfigKeys []string) []string {
	wrongFields := make([]string, 0)
	for _, key := range keysOnFile {
		if !contains(expectedConfigKeys, key) {
			wrongFields = append(wrongFields, key)
		}
	}
	return wrongFields
}
