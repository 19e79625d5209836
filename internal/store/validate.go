package store

import "fmt"

// Validate checks the invariants the original configuration tool enforced:
// at least one device must be configured, and a non-empty channel whitelist
// requires a segment-database API key (the whitelist is meaningless without
// a way to resolve channel metadata from it).
func (s *Store) Validate() error {
	devices, err := s.ListDevices()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("validating config: at least one device must be configured")
	}

	whitelist, err := s.ListChannelWhitelist()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if len(whitelist) > 0 {
		g, err := s.GetGlobalSettings()
		if err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
		if g.APIKey == "" {
			return fmt.Errorf("validating config: channel whitelist is set but no api key is configured")
		}
	}
	return nil
}
