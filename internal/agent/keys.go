package agent

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Key source errors.
var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")
	ErrAccountIndex    = errors.New("account index out of range")
	ErrDecryptFailed   = errors.New("decrypting key: wrong passphrase or corrupted file")
)

// BIP44 path components for Ethereum accounts: m/44'/60'/0'/0/i.
const (
	purpose  = 44
	coinType = 60
)

// scryptWorkFactor is the age scrypt cost used when sealing key files.
//
//nolint:gochecknoglobals // Lowered in tests
var scryptWorkFactor = 18

// KeySource yields private keys by account index.
type KeySource interface {
	// Key returns the private key for the account index.
	Key(index int) (*ecdsa.PrivateKey, error)

	// Count returns the number of accounts, or 0 when unbounded.
	Count() int
}

type hdSource struct {
	account *bip32.Key // m/44'/60'/0'/0
}

// NewMnemonicSource derives accounts from a BIP39 mnemonic along m/44'/60'/0'/0/i.
func NewMnemonicSource(mnemonic, passphrase string) (KeySource, error) {
	normalized := NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(normalized) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(normalized, passphrase)
	defer zeroBytes(seed)

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}

	key := master
	for _, idx := range []uint32{
		bip32.FirstHardenedChild + purpose,
		bip32.FirstHardenedChild + coinType,
		bip32.FirstHardenedChild,
		0,
	} {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("deriving account key: %w", err)
		}
	}

	return &hdSource{account: key}, nil
}

func (s *hdSource) Key(index int) (*ecdsa.PrivateKey, error) {
	if index < 0 || index >= int(bip32.FirstHardenedChild) {
		return nil, ErrAccountIndex
	}
	child, err := s.account.NewChildKey(uint32(index)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, fmt.Errorf("deriving address key: %w", err)
	}
	return crypto.ToECDSA(common.LeftPadBytes(child.Key, 32))
}

func (s *hdSource) Count() int { return 0 }

type singleSource struct {
	key *ecdsa.PrivateKey
}

// NewKeySource wraps a single private key.
func NewKeySource(key *ecdsa.PrivateKey) KeySource {
	return &singleSource{key: key}
}

func (s *singleSource) Key(index int) (*ecdsa.PrivateKey, error) {
	if index != 0 {
		return nil, ErrAccountIndex
	}
	return s.key, nil
}

func (s *singleSource) Count() int { return 1 }

// LoadMnemonicFile reads a mnemonic from disk and derives accounts from it.
func LoadMnemonicFile(path, passphrase string) (KeySource, error) {
	// #nosec G304 -- key file path comes from config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mnemonic file: %w", err)
	}
	defer zeroBytes(data)
	return NewMnemonicSource(string(data), passphrase)
}

// LoadKeystoreFile decrypts a go-ethereum keystore JSON file.
func LoadKeystoreFile(path, passphrase string) (KeySource, error) {
	// #nosec G304 -- key file path comes from config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore file: %w", err)
	}

	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return NewKeySource(key.PrivateKey), nil
}

// LoadAgeKeyFile decrypts an age scrypt file holding a hex private key.
func LoadAgeKeyFile(path, passphrase string) (KeySource, error) {
	// #nosec G304 -- key file path comes from config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	plaintext, err := openAge(data, passphrase)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	hexKey := strings.TrimPrefix(strings.TrimSpace(string(plaintext)), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return NewKeySource(key), nil
}

// SealKey encrypts a private key for LoadAgeKeyFile.
func SealKey(key *ecdsa.PrivateKey, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, err
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, err
	}

	plaintext := []byte(hex.EncodeToString(crypto.FromECDSA(key)))
	defer zeroBytes(plaintext)

	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func openAge(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return io.ReadAll(r)
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace and commas.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(strings.ReplaceAll(input, ",", " "))
	return strings.Join(strings.Fields(input), " ")
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
