package config

import (
	"os"
	"regexp"
)

// substVarPattern matches ${VAR} or $VAR references. The loader expands
// environment references against the raw document text before it is
// parsed as YAML.
var substVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Substitute expands ${VAR} and $VAR references in contents against
// lookup (typically os.LookupEnv). A reference to an unset variable is
// left unexpanded, matching a permissive pass-through rather than
// failing the whole config load.
func Substitute(contents string, lookup func(string) (string, bool)) string {
	return substVarPattern.ReplaceAllStringFunc(contents, func(match string) string {
		groups := substVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		if val, ok := lookup(name); ok {
			return val
		}
		return match
	})
}

// SubstituteEnv expands contents against the process environment.
func SubstituteEnv(contents string) string {
	return Substitute(contents, os.LookupEnv)
}
