package imagestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadReferences reads the username -> reference filename mapping from a JSON
// file. The mapping is provisioned out of band; a missing file just means no
// student requires face verification.
func LoadReferences(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read reference map: %w", err)
	}
	var refs map[string]string
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse reference map: %w", err)
	}
	return refs, nil
}
