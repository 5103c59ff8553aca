package main

import (
	"os"

	opnode "github.com/0xPolygon/cdk-opnode"
	"github.com/urfave/cli/v2"
)

func versionCmd(*cli.Context) error {
	opnode.PrintVersion(os.Stdout)
	return nil
}
