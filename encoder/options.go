package encoder

import (
	"fmt"

	"github.com/google/shlex"
)

// SplitOptions splits a raw encoder directive string into arguments with
// POSIX shell quoting rules. Nothing is expanded and no shell runs.
func SplitOptions(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid output options %q: %w", s, err)
	}
	return args, nil
}
