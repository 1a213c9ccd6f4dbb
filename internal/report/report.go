// Package report renders completed-session reports to JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, r *types.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML renders the report as YAML.
func WriteYAML(w io.Writer, r *types.RunReport) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(r)
}

// Save writes the report to path, choosing the format from the extension.
// ".yaml" and ".yml" produce YAML, everything else JSON.
func Save(path string, r *types.RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = WriteYAML(f, r)
	default:
		err = WriteJSON(f, r)
	}

	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
