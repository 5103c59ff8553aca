package main

import (
	"os"

	opnode "github.com/0xPolygon/cdk-opnode"
	"github.com/0xPolygon/cdk-opnode/common"
	"github.com/0xPolygon/cdk-opnode/config"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/urfave/cli/v2"
)

const appName = "opnode"

var (
	configFileFlag = cli.StringSliceFlag{
		Name:     config.FlagCfg,
		Aliases:  []string{"c"},
		Usage:    "Configuration file(s)",
		Required: true,
	}
	rollupConfigFlag = cli.StringFlag{
		Name:     config.FlagRollupCfg,
		Aliases:  []string{"r"},
		Usage:    "Rollup chain config `FILE` (JSON or TOML), overrides Common.RollupConfigPath",
		Required: false,
	}
	componentsFlag = cli.StringSliceFlag{
		Name:     config.FlagComponents,
		Aliases:  []string{"co"},
		Usage:    "List of components to run besides the derivation driver",
		Required: false,
		Value:    cli.NewStringSlice(common.RPC),
	}
	saveConfigFlag = cli.StringFlag{
		Name:     config.FlagSaveConfigPath,
		Aliases:  []string{"s"},
		Usage:    "Save final configuration into to the indicated path (name: " + config.SaveConfigFileName + ")",
		Required: false,
	}
	minConfigFlag = cli.BoolFlag{
		Name:     config.FlagMinConfig,
		Usage:    "Print only the mandatory vars",
		Required: false,
	}
	schemaFlag = cli.BoolFlag{
		Name:     config.FlagSchema,
		Usage:    "Print the JSON schema of the config file",
		Required: false,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "OP stack rollup node: derives the L2 chain from L1 and drives the execution engine"
	app.Version = opnode.Version
	app.Commands = []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Application version and build",
			Action:  versionCmd,
		},
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run the rollup node",
			Action:  start,
			Flags:   []cli.Flag{&configFileFlag, &rollupConfigFlag, &componentsFlag, &saveConfigFlag},
		},
		{
			Name:    "config",
			Aliases: []string{},
			Usage:   "Print the default config or its JSON schema",
			Action:  configCmd,
			Flags:   []cli.Flag{&minConfigFlag, &schemaFlag},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
