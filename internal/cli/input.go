package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/roach88/mcg/internal/ir"
)

// readSource resolves an argument that may hold data inline, name a file
// as @path, or read stdin as "-".
func readSource(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read input file", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

// readPayload reads a payload argument and parses it as a JSON object.
func readPayload(arg string, stdin io.Reader) (ir.Object, error) {
	data, err := readSource(arg, stdin)
	if err != nil {
		return nil, err
	}
	obj, err := ir.ParseObject(data)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid payload", err)
	}
	return obj, nil
}

// shortTime renders timestamps in text output.
func shortTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// orDash renders empty strings as "-" in text tables.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
