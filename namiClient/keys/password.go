package keys

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/nami-protocol/nami-client/namiClient/config"
)

// PasswordManager reads keyring passwords from a terminal or a pipe.
type PasswordManager struct {
	in  *os.File
	out io.Writer
}

// NewPasswordManager creates a password manager reading from in and
// prompting on out.
func NewPasswordManager(in *os.File, out io.Writer) *PasswordManager {
	return &PasswordManager{in: in, out: out}
}

// GetPassword prompts for a password. On a terminal the input is not
// echoed; otherwise one line is read.
func (pm *PasswordManager) GetPassword(prompt string) (string, error) {
	fmt.Fprint(pm.out, prompt)

	fd := int(pm.in.Fd())
	if !term.IsTerminal(fd) {
		password, err := bufio.NewReader(pm.in).ReadString('\n')
		if err != nil && !(err == io.EOF && password != "") {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimSpace(password), nil
	}

	passwordBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(pm.out)
	return string(passwordBytes), nil
}

// GetPasswordWithConfirmation prompts for password and confirmation
func (pm *PasswordManager) GetPasswordWithConfirmation(prompt string) (string, error) {
	password, err := pm.GetPassword(prompt)
	if err != nil {
		return "", err
	}

	confirm, err := pm.GetPassword("Confirm password: ")
	if err != nil {
		return "", err
	}

	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// ValidatePasswordStrength requires 8 characters mixing upper and lower
// case letters, digits and symbols.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, char := range password {
		switch {
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= '0' && char <= '9':
			hasDigit = true
		case char >= 32 && char <= 126:
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "digit")
	}
	if !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PasswordForBackend returns the keyring password for backend. The
// configured password wins; the file backend otherwise prompts, with a
// confirmation and strength check when a new key is being created.
func (pm *PasswordManager) PasswordForBackend(backend config.KeyringBackend, configured string, create bool) (string, error) {
	if backend != config.KeyringBackendFile {
		return "", nil
	}
	if configured != "" {
		return configured, nil
	}
	if !create {
		return pm.GetPassword("Enter keyring password: ")
	}

	password, err := pm.GetPasswordWithConfirmation("Enter new keyring password: ")
	if err != nil {
		return "", err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return "", err
	}
	return password, nil
}
