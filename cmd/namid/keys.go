package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/spf13/cobra"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/keys"
	"github.com/nami-protocol/nami-client/namiClient/logger"
)

var keyringBackendFlag string

// KeyOutput describes one key of the keyring.
type KeyOutput struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	PubKey  string `yaml:"pubkey" json:"pubkey"`
	Type    string `yaml:"type" json:"type"`
	Active  bool   `yaml:"active,omitempty" json:"active,omitempty"`
}

// keysCmd returns the keys command with all subcommands
func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage keys of the keyring wallet adapter",
		Long: `
The keys commands manage the keys the keyring wallet adapter signs with.
The adapter uses the key named by key_name in the config.

Available Commands:
  add     Create or recover a key
  list    List all keys
  show    Show key details
  delete  Delete a key
`,
	}

	cmd.PersistentFlags().StringVar(&keyringBackendFlag, "keyring-backend", "", "Select keyring backend (test|file|os), defaults to the config")

	cmd.AddCommand(keysAddCmd())
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysShowCmd())
	cmd.AddCommand(keysDeleteCmd())

	return cmd
}

// openKeyring opens the configured keyring. create asks for a new password
// with confirmation on the file backend.
func openKeyring(cmd *cobra.Command, create bool) (keyring.Keyring, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	if keyringBackendFlag != "" {
		cfg.KeyringBackend = config.KeyringBackend(keyringBackendFlag)
	}

	if dir := keys.KeyringDir(cfg.NodeHome, cfg.KeyringBackend); dir != "" {
		log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
		if err := keys.ValidateKeyringDirectory(dir, log); err != nil {
			return nil, config.Config{}, err
		}
	}

	pm := keys.NewPasswordManager(os.Stdin, cmd.ErrOrStderr())
	password, err := pm.PasswordForBackend(cfg.KeyringBackend, cfg.KeyringPassword, create)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to get keyring password: %w", err)
	}

	kr, err := keys.CreateKeyring(cfg.NodeHome, keys.PasswordReader(cfg.KeyringBackend, password), cfg.KeyringBackend)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to create keyring: %w", err)
	}
	return kr, cfg, nil
}

func keyOutput(record *keyring.Record, activeName string) (KeyOutput, error) {
	addr, err := record.GetAddress()
	if err != nil {
		return KeyOutput{}, fmt.Errorf("failed to get address: %w", err)
	}
	pubKey, err := record.GetPubKey()
	if err != nil {
		return KeyOutput{}, fmt.Errorf("failed to get public key: %w", err)
	}
	return KeyOutput{
		Name:    record.Name,
		Address: addr.String(),
		PubKey:  fmt.Sprintf("%x", pubKey.Bytes()),
		Type:    record.GetType().String(),
		Active:  record.Name == activeName,
	}, nil
}

// keysAddCmd creates a new key
func keysAddCmd() *cobra.Command {
	var recoverFlag bool
	var noBackupFlag bool

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a new key",
		Long: `
Create a new key, or recover one from its mnemonic with --recover.
The name defaults to key_name from the config.

Examples:
  namid keys add
  namid keys add my-key --keyring-backend test
  namid keys add my-key --recover
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, cfg, err := openKeyring(cmd, true)
			if err != nil {
				return err
			}

			keyName := cfg.KeyName
			if len(args) == 1 {
				keyName = args[0]
			}
			if err := keys.ValidateKeyName(keyName); err != nil {
				return err
			}
			if err := keys.ValidateKeyExists(kr, keyName); err == nil {
				return fmt.Errorf("key with name '%s' already exists", keyName)
			}

			var mnemonic string
			if recoverFlag {
				fmt.Fprint(cmd.ErrOrStderr(), "Enter your mnemonic phrase: ")
				mnemonic, err = bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read mnemonic: %w", err)
				}
				mnemonic = strings.TrimSpace(mnemonic)
			}

			record, generatedMnemonic, err := keys.CreateNewKey(kr, keyName, mnemonic, "")
			if err != nil {
				return fmt.Errorf("failed to create key: %w", err)
			}

			out, err := keyOutput(record, cfg.KeyName)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Key created successfully!\n")
			fmt.Fprintf(w, "Name: %s\n", out.Name)
			fmt.Fprintf(w, "Address: %s\n", out.Address)
			fmt.Fprintf(w, "Public Key: %s\n", out.PubKey)

			if !recoverFlag && !noBackupFlag {
				fmt.Fprintf(w, "\nIMPORTANT: Save this mnemonic phrase securely!\n")
				fmt.Fprintf(w, "Mnemonic: %s\n", generatedMnemonic)
				fmt.Fprintf(w, "\nThis is the only time you will see the mnemonic. Keep it safe!\n")
			}
			if keyName != cfg.KeyName {
				fmt.Fprintf(w, "\nSet key_name to %q in the config to sign with this key.\n", keyName)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&recoverFlag, "recover", false, "Import key from mnemonic phrase")
	cmd.Flags().BoolVar(&noBackupFlag, "no-backup", false, "Don't display mnemonic for backup")

	return cmd
}

// keysListCmd lists all keys in the keyring
func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keys in keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, cfg, err := openKeyring(cmd, false)
			if err != nil {
				return err
			}

			records, err := kr.List()
			if err != nil {
				return fmt.Errorf("failed to list keys: %w", err)
			}

			out := make([]KeyOutput, 0, len(records))
			for _, record := range records {
				k, err := keyOutput(record, cfg.KeyName)
				if err != nil {
					return fmt.Errorf("key %s: %w", record.Name, err)
				}
				out = append(out, k)
			}
			return printOutput(cmd.OutOrStdout(), out, outputFlag)
		},
	}
}

// keysShowCmd shows details for a specific key
func keysShowCmd() *cobra.Command {
	var addressOnly bool

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show key details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, cfg, err := openKeyring(cmd, false)
			if err != nil {
				return err
			}

			keyName := cfg.KeyName
			if len(args) == 1 {
				keyName = args[0]
			}
			record, err := kr.Key(keyName)
			if err != nil {
				return fmt.Errorf("key '%s' not found: %w", keyName, err)
			}

			out, err := keyOutput(record, cfg.KeyName)
			if err != nil {
				return err
			}
			if addressOnly {
				fmt.Fprintln(cmd.OutOrStdout(), out.Address)
				return nil
			}
			return printOutput(cmd.OutOrStdout(), out, outputFlag)
		},
	}

	cmd.Flags().BoolVar(&addressOnly, "address", false, "Show only the address")
	return cmd
}

// keysDeleteCmd deletes a key from the keyring
func keysDeleteCmd() *cobra.Command {
	var skipConfirmation bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a key from keyring",
		Long: `
Delete a key from the keyring. This action cannot be undone.
Make sure you have backed up the key before deletion.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyName := args[0]

			kr, cfg, err := openKeyring(cmd, false)
			if err != nil {
				return err
			}

			record, err := kr.Key(keyName)
			if err != nil {
				return fmt.Errorf("key '%s' not found: %w", keyName, err)
			}
			addr, _ := record.GetAddress()

			w := cmd.OutOrStdout()
			if cfg.KeyName == keyName {
				fmt.Fprintf(w, "WARNING: the keyring wallet adapter signs with this key.\n\n")
			}

			if !skipConfirmation {
				fmt.Fprintf(w, "Are you sure you want to delete key '%s' (%s)? [y/N]: ", keyName, addr.String())
				response, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}

				response = strings.TrimSpace(strings.ToLower(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(w, "Deletion cancelled")
					return nil
				}
			}

			if err := kr.Delete(keyName); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			fmt.Fprintf(w, "Key '%s' deleted\n", keyName)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&skipConfirmation, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}
