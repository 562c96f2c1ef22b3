package keys

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ValidateKeyringDirectory creates the keyring directory with mode 0700 or
// tightens the mode of an existing one.
func ValidateKeyringDirectory(path string, log zerolog.Logger) error {
	if path == "" {
		return fmt.Errorf("keyring path is empty")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("failed to create keyring directory: %w", err)
		}
		log.Info().Str("path", path).Msg("created keyring directory")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check keyring directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("keyring path is not a directory: %s", path)
	}

	if info.Mode().Perm() != 0o700 {
		log.Warn().
			Str("path", path).
			Str("current_perms", info.Mode().Perm().String()).
			Msg("keyring directory permissions should be 700, fixing")
		if err := os.Chmod(path, 0o700); err != nil {
			return fmt.Errorf("failed to set secure permissions on keyring directory: %w", err)
		}
	}
	return nil
}

// ValidateKeyName rejects empty, overlong and non-printable key names.
func ValidateKeyName(keyName string) error {
	if keyName == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if len(keyName) > 64 {
		return fmt.Errorf("key name too long (max 64 characters)")
	}
	for _, char := range keyName {
		if char < 32 || char > 126 {
			return fmt.Errorf("key name contains invalid characters")
		}
	}
	return nil
}
