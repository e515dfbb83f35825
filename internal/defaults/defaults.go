// Package defaults provides embedded copies of the starter settings and
// tool-arguments files for the mcptok init subcommand.
package defaults

import _ "embed"

//go:embed mcptok.example.yaml
var ConfigYAML []byte

//go:embed tools.example.yaml
var ToolsYAML []byte
