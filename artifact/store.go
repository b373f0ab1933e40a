package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/internal/logger"
)

// Save writes the artifact as indented JSON. The write goes to a temp file
// in the target directory and is renamed into place, so a crashed run never
// leaves a truncated artifact behind.
func Save(a *Artifact, path string) error {
	if err := a.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid artifact")
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal artifact")
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create artifact directory")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write artifact")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "finalize artifact")
	}

	logger.WithComponent(logger.ComponentArtifact).Info("artifact saved", map[string]interface{}{
		"path":     path,
		"provider": a.Provider,
		"mode":     string(a.Mode),
	})
	return nil
}

// Load reads and validates an artifact.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "parse artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, errors.Wrapf(err, "artifact %s", path)
	}
	return &a, nil
}
