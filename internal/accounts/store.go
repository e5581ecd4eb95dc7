package accounts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the account list from path. JSON files are read as YAML flow documents.
func Load(path string) ([]*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an account list
func Parse(data []byte) ([]*Account, error) {
	var accs []*Account
	if err := yaml.Unmarshal(data, &accs); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}

	seen := make(map[string]bool, len(accs))
	for i, a := range accs {
		if a == nil || a.ID == "" {
			return nil, fmt.Errorf("account #%d has no id", i+1)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return accs, nil
}
