package cli

import (
	"crypto/ecdsa"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/app"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/fileutil"
	"github.com/mrz1836/agrosync/internal/output"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// mnemonicEntropyBits yields a 12 word phrase.
const mnemonicEntropyBits = 128

// agentCmd is the parent command for signing agent key management.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the local signing agent's keys",
	Long: `Manage the key material the local signing agent signs with.

The agent loads keys from the source named in the agent section of the
configuration: a BIP39 mnemonic file, a go-ethereum keystore file, or an
age-encrypted private key file.`,
	GroupID: groupAccount,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var agentAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the addresses the agent can expose",
	Long: `Show the account addresses derived from the configured key source without
connecting to the ledger.

Mnemonic sources derive accounts along m/44'/60'/0'/0/i; keystore and age
sources hold a single account.`,
	Example: `  agrosync agent address
  agrosync agent address --count 5`,
	Args: cobra.NoArgs,
	RunE: runAgentAddress,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var agentNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a mnemonic for the agent",
	Long: `Generate a new 12 word BIP39 mnemonic and write it to the configured mnemonic
file with owner-only permissions.

The phrase is printed once. Store it somewhere safe: it is the only way to
recover the accounts.`,
	Example: `  agrosync agent new
  agrosync agent new --force`,
	Args: cobra.NoArgs,
	RunE: runAgentNew,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var agentSealCmd = &cobra.Command{
	Use:   "seal <file>",
	Short: "Encrypt a private key into an age key file",
	Long: `Prompt for a hex private key and a passphrase, and write the key to file
encrypted with age scrypt.

Point agent.age_key_file at the file and set agent.source to agefile to use it.`,
	Example: `  agrosync agent seal ~/.agrosync/key.age`,
	Args:    cobra.ExactArgs(1),
	RunE:    runAgentSeal,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	agentCount int
	agentForce bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentAddressCmd)
	agentCmd.AddCommand(agentNewCmd)
	agentCmd.AddCommand(agentSealCmd)

	agentAddressCmd.Flags().IntVar(&agentCount, "count", 1, "number of accounts to derive")
	agentNewCmd.Flags().BoolVar(&agentForce, "force", false, "overwrite an existing mnemonic file")
}

type agentAccount struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

func runAgentAddress(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if agentCount < 1 {
		return agroerr.WithMessage(agroerr.ErrInvalidInput, "--count must be at least 1")
	}
	passphrase, err := agentPassphrase(cc)
	if err != nil {
		return err
	}
	src, err := app.KeySourceFromConfig(cc.Cfg.Agent, passphrase)
	if err != nil {
		return err
	}

	count := agentCount
	if n := src.Count(); n > 0 && n < count {
		count = n
	}
	accounts := make([]agentAccount, 0, count)
	for i := 0; i < count; i++ {
		key, kerr := src.Key(i)
		if kerr != nil {
			return agroerr.WithCause(agroerr.ErrKeyUnavailable, kerr)
		}
		accounts = append(accounts, agentAccount{Index: i, Address: crypto.PubkeyToAddress(key.PublicKey).Hex()})
	}

	return cc.printer(cmd).Result(accounts, func(w io.Writer) error {
		table := output.NewTable("INDEX", "ADDRESS")
		table.AlignRight(0)
		for _, a := range accounts {
			marker := strconv.Itoa(a.Index)
			if a.Index == cc.Cfg.Agent.Account {
				marker += "*"
			}
			table.AddRow(marker, a.Address)
		}
		return table.Render(w)
	})
}

func runAgentNew(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := cc.Cfg.Agent.MnemonicFile
	if path == "" {
		path = filepath.Join(cc.Cfg.Home, "mnemonic.txt")
	}
	path, err := config.ExpandHome(path)
	if err != nil {
		return err
	}

	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return err
	}
	defer zero(entropy)
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return err
	}
	src, err := agent.NewMnemonicSource(mnemonic, "")
	if err != nil {
		return err
	}
	key, err := src.Key(0)
	if err != nil {
		return err
	}

	write := fileutil.WriteNew
	if agentForce {
		write = fileutil.WriteAtomic
	}
	if err := write(path, []byte(mnemonic+"\n"), 0o600); err != nil {
		if errors.Is(err, os.ErrExist) {
			return agroerr.WithSuggestion(
				agroerr.WithDetails(agroerr.WithMessage(agroerr.ErrInvalidInput, "mnemonic file already exists"),
					map[string]string{"path": path}),
				"use --force to replace it; the accounts of the old phrase are lost unless it is backed up")
		}
		return agroerr.Wrap(err, "writing mnemonic file")
	}

	result := map[string]string{
		"path":     path,
		"mnemonic": mnemonic,
		"address":  crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
	return cc.printer(cmd).Result(result, func(w io.Writer) error {
		output.Success(w, "Mnemonic written to %s", path)
		outln(w)
		outln(w, "  "+mnemonic)
		outln(w)
		outln(w, "First account: "+result["address"])
		if !strings.EqualFold(cc.Cfg.Agent.Source, app.SourceMnemonic) {
			output.Warn(w, "agent.source is %q; set it to mnemonic to use this phrase", cc.Cfg.Agent.Source)
		}
		return nil
	})
}

func runAgentSeal(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path, err := config.ExpandHome(args[0])
	if err != nil {
		return err
	}

	raw, err := promptSecretFn("Private key (hex): ")
	if err != nil {
		return err
	}
	defer zero(raw)
	key, err := parsePrivateKey(string(raw))
	if err != nil {
		return err
	}

	passphrase, err := promptSecretFn("Passphrase: ")
	if err != nil {
		return err
	}
	defer zero(passphrase)
	if len(passphrase) < 8 {
		return agroerr.WithSuggestion(agroerr.ErrInvalidInput, "passphrase must be at least 8 characters")
	}
	confirm, err := promptSecretFn("Confirm passphrase: ")
	if err != nil {
		return err
	}
	defer zero(confirm)
	if string(passphrase) != string(confirm) {
		return agroerr.WithSuggestion(agroerr.ErrInvalidInput, "passphrases do not match")
	}

	sealed, err := agent.SealKey(key, string(passphrase))
	if err != nil {
		return agroerr.Wrap(err, "sealing key")
	}
	if err := fileutil.WriteAtomic(path, sealed, 0o600); err != nil {
		return agroerr.Wrap(err, "writing key file")
	}

	result := map[string]string{"path": path, "address": crypto.PubkeyToAddress(key.PublicKey).Hex()}
	return cc.printer(cmd).Result(result, func(w io.Writer) error {
		output.Success(w, "Sealed key for %s to %s", result["address"], path)
		return nil
	})
}

func parsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, agroerr.WithMessage(agroerr.ErrInvalidInput, "not a hex private key")
	}
	return key, nil
}

// agentPassphrase returns the key source passphrase from the environment,
// prompting for it on a terminal when the source is encrypted.
func agentPassphrase(cc *CommandContext) (string, error) {
	if p := os.Getenv(config.EnvAgentPassphrase); p != "" {
		return p, nil
	}
	source := strings.ToLower(strings.TrimSpace(cc.Cfg.Agent.Source))
	if (source != app.SourceKeystore && source != app.SourceAgeFile) || !isTerminalFn() {
		return "", nil
	}
	secret, err := promptSecretFn("Agent passphrase: ")
	if err != nil {
		return "", err
	}
	defer zero(secret)
	return string(secret), nil
}
