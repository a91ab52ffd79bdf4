package cmd

import (
	"fmt"
	"strings"
)

// parseData turns KEY=VALUE arguments into a map. Only the first '=' splits;
// keys and values are trimmed and later keys win.
func parseData(args []string) (map[string]string, error) {
	data := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid argument %q: expected KEY=VALUE", arg)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid argument %q: empty key", arg)
		}
		data[key] = strings.TrimSpace(value)
	}
	return data, nil
}
