package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// LegacyCacheFile is the flat-file ETag cache written by earlier releases,
// kept directly under the cache root.
const LegacyCacheFile = "etags.json"

// MigratedSuffix is appended to a legacy file after a successful import.
// The original content is renamed, never deleted, so a bad migration
// always leaves recoverable evidence.
const MigratedSuffix = ".migrated"

type legacyEntry struct {
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// MigrateLegacyCache imports the flat-file ETag cache under cacheRoot into
// the validators table, then renames the file with MigratedSuffix. Absence
// of the legacy file is not an error. Existing validator rows win over
// legacy entries: migration is additive only.
func (s *Store) MigrateLegacyCache(cacheRoot string) error {
	legacyPath := filepath.Join(cacheRoot, LegacyCacheFile)
	data, err := os.ReadFile(legacyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read legacy cache %s: %v", ErrPersistence, legacyPath, err)
	}

	var entries map[string]legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Leave the file in place for inspection; do not block the run.
		return fmt.Errorf("%w: parse legacy cache %s: %v", ErrPersistence, legacyPath, err)
	}

	imported := 0
	for url, e := range entries {
		if e.ETag == "" {
			continue
		}
		if _, ok, err := s.Validator(url); err != nil || ok {
			continue
		}
		if _, err := s.db.Exec(`
			INSERT OR IGNORE INTO validators (url, etag, size, updated_at)
			VALUES (?, ?, ?, ?)
		`, url, e.ETag, e.Size, time.Now().UnixNano()); err != nil {
			return fmt.Errorf("%w: import validator for %s: %v", ErrPersistence, url, err)
		}
		imported++
	}

	migratedPath := legacyPath + MigratedSuffix
	if err := os.Rename(legacyPath, migratedPath); err != nil {
		return fmt.Errorf("%w: rename legacy cache to %s: %v", ErrPersistence, migratedPath, err)
	}
	log.Printf("state: migrated %d validator entries from %s", imported, legacyPath)
	return nil
}
