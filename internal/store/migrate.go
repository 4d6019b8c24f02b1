package store

import "edaconn/pkg/logging"

// Migrate upgrades legacy single-target storage to the profile list.
// Older versions persisted only an edaUrl; if one exists without a target
// list, a profile is synthesized from it and marked active. Runs before
// session restore and is idempotent.
func (s *Store) Migrate() error {
	edaURL, ok, err := s.GetString(KeyEdaURL)
	if err != nil || !ok || edaURL == "" {
		return err
	}

	targets, err := s.Targets()
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		return nil
	}

	target := TargetProfile{
		ID:     TargetID(edaURL),
		EdaURL: edaURL,
	}
	if err := s.SaveTarget(target); err != nil {
		return err
	}
	if err := s.SetString(KeyActiveTargetID, target.ID); err != nil {
		return err
	}

	logging.Info("Store", "Migrated legacy configuration to target profile for %s", edaURL)
	return nil
}
