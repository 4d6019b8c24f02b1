package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/timshannon/badgerhold/v4"
)

// TargetProfile is a saved connection endpoint the user can select and
// connect to. The stored password is optional; profiles restored by id
// reproduce edaUrl/username/clientSecret, while passwords only round-trip
// when the user chose to save them.
type TargetProfile struct {
	ID           string `json:"id"`
	EdaURL       string `json:"edaUrl"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	ClientSecret string `json:"clientSecret"`
}

// TargetID derives a stable profile id from the normalized EDA URL.
// The same URL (modulo case of the host, trailing slashes) always maps to
// the same id.
func TargetID(edaURL string) string {
	normalized := normalizeURL(edaURL)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

func normalizeURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Targets returns all saved target profiles.
func (s *Store) Targets() ([]TargetProfile, error) {
	var targets []TargetProfile
	err := s.db.Find(&targets, badgerhold.Where("ID").Ne("").SortBy("EdaURL"))
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

// GetTarget returns the profile with the given id, if present.
func (s *Store) GetTarget(id string) (*TargetProfile, bool, error) {
	var target TargetProfile
	err := s.db.Get(id, &target)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get target %s: %w", id, err)
	}
	return &target, true, nil
}

// SaveTarget inserts or updates a profile, keeping uniqueness by id.
func (s *Store) SaveTarget(target TargetProfile) error {
	if target.ID == "" {
		return errors.New("target profile has no id")
	}
	if err := s.db.Upsert(target.ID, &target); err != nil {
		return fmt.Errorf("failed to save target %s: %w", target.ID, err)
	}
	return nil
}

// DeleteTarget removes a profile. Deleting a missing profile is a no-op.
func (s *Store) DeleteTarget(id string) error {
	err := s.db.Delete(id, &TargetProfile{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete target %s: %w", id, err)
	}
	return nil
}
