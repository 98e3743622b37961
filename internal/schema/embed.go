package schema

import _ "embed"

// defaultSchema is the built-in documentation-ops definition set, used when
// no schema file is configured.
//
//go:embed defaults.yaml
var defaultSchema []byte
