package standard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/renderd/internal/cli/client"
)

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func apiClient(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Flags().GetString("api")
	if err != nil {
		return nil, err
	}
	return client.New(base)
}

func printJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// parsePairs turns repeated "name=value" flags into a map.
func parsePairs(raw []string, flagName string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	pairs := make(map[string]string, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected name=value", flagName, entry)
		}
		pairs[name] = strings.TrimSpace(value)
	}
	return pairs, nil
}
