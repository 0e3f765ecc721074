package secret

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `$VAR` and `${VAR}` are expanded via os.ExpandEnv.
//   - If `${VAR}` is present but VAR is missing from the environment, it
//     fails with ErrMissingEnv naming every missing variable.
//   - `$$` emits a literal `$`.
func ExpandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00APISESSION_SECRET_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing[match[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := slices.Sorted(maps.Keys(missing))
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
