package app

import (
	"strings"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Agent key sources.
const (
	SourceMnemonic = "mnemonic"
	SourceKeystore = "keystore"
	SourceAgeFile  = "agefile"
)

// KeySourceFromConfig loads the key material the agent section points at.
func KeySourceFromConfig(c config.AgentConfig, passphrase string) (agent.KeySource, error) {
	source := strings.ToLower(strings.TrimSpace(c.Source))

	var (
		path string
		load func(path, passphrase string) (agent.KeySource, error)
	)
	switch source {
	case SourceMnemonic:
		path, load = c.MnemonicFile, agent.LoadMnemonicFile
	case SourceKeystore:
		path, load = c.KeystoreFile, agent.LoadKeystoreFile
	case SourceAgeFile:
		path, load = c.AgeKeyFile, agent.LoadAgeKeyFile
	case "":
		return nil, agroerr.WithSuggestion(
			agroerr.WithMessage(agroerr.ErrNotConfigured, "no signing agent key source configured"),
			"set agent.source to mnemonic, keystore, or agefile in config.yaml")
	default:
		return nil, agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrConfigInvalid, "unknown agent key source"),
			map[string]string{"source": c.Source})
	}

	if strings.TrimSpace(path) == "" {
		return nil, agroerr.WithSuggestion(
			agroerr.WithMessage(agroerr.ErrNotConfigured, "no key file configured for agent source "+source),
			"set the "+source+" key file path in the agent section of config.yaml")
	}
	expanded, err := config.ExpandHome(path)
	if err != nil {
		return nil, agroerr.Wrap(err, "expanding key file path")
	}

	src, err := load(expanded, passphrase)
	if err != nil {
		return nil, agroerr.WithCause(agroerr.ErrKeyUnavailable, err)
	}
	return src, nil
}

// NewAgent builds a local signing agent for the configured network.
func NewAgent(cfg *config.Config, passphrase string, approve agent.ApproveFunc, logger *config.Logger) (*agent.KeyAgent, error) {
	src, err := KeySourceFromConfig(cfg.Agent, passphrase)
	if err != nil {
		return nil, err
	}
	return agent.NewKeyAgent(src, agent.Options{
		Networks: []config.NetworkConfig{cfg.Network},
		ChainID:  cfg.Network.ChainID,
		Account:  cfg.Agent.Account,
		Approve:  approve,
		Logger:   logger,
	})
}
