// Package checkpoint persists round records and global parameter versions
// as files, so an interrupted run leaves an inspectable trail and the latest
// model survives a coordinator restart.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/absmach/flock/wire"
)

type Store struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewStore(roundsDir, modelsDir string) (*Store, error) {
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Store{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

// SaveRound writes one round record. The run ID is sanitized before being
// used in a file name to prevent path traversal.
func (s *Store) SaveRound(runID string, round uint64, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sanitizeID(runID)
	if id == "" {
		return fmt.Errorf("invalid run ID: %s", runID)
	}

	file := filepath.Join(s.roundsDir, fmt.Sprintf("%s_round_%d.json", id, round))
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

// SaveParameters writes one version of the global parameters.
func (s *Store) SaveParameters(version uint64, params wire.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.modelsDir, fmt.Sprintf("model_v%d.json", version))
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (s *Store) LoadParameters(version uint64) (wire.Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file := filepath.Join(s.modelsDir, fmt.Sprintf("model_v%d.json", version))
	data, err := os.ReadFile(file)
	if err != nil {
		return wire.Parameters{}, fmt.Errorf("failed to read model file: %w", err)
	}

	var params wire.Parameters
	if err := json.Unmarshal(data, &params); err != nil {
		return wire.Parameters{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return params, nil
}

// LatestVersion returns the highest persisted parameter version, or false
// when none exists.
func (s *Store) LatestVersion() (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.modelsDir)
	if err != nil {
		return 0, false, err
	}

	var latest uint64
	found := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version uint64
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.json", &version); err == nil {
			if !found || version > latest {
				latest = version
			}
			found = true
		}
	}

	return latest, found, nil
}

// sanitizeID keeps only characters that are safe inside a file name.
func sanitizeID(id string) string {
	var out strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}

	return strings.TrimSpace(out.String())
}
