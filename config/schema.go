package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

const schemaID = "github.com/0xPolygon/cdk-opnode/config/config"

// Schema returns the JSON schema of the node config file. Field names follow
// the mapstructure tags, as they are written on the TOML file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:   "mapstructure",
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = schemaID
	schema.Title = "Rollup node config file"
	return json.MarshalIndent(schema, "", "  ")
}
