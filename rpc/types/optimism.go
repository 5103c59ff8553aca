package types

import "github.com/0xPolygon/cdk-opnode/rollup"

// SafeHeadResponse is the result of optimism_safeHeadAtL1Block
type SafeHeadResponse struct {
	L1Block  rollup.BlockID `json:"l1Block"`
	SafeHead rollup.BlockID `json:"safeHead"`
}

// VersionResponse is the result of optimism_version
type VersionResponse struct {
	Version   string `json:"version"`
	GitRev    string `json:"gitRev"`
	GoVersion string `json:"goVersion"`
}
