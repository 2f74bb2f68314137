package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // Swappable prompt hooks
var (
	promptSecretFn  = promptSecret
	promptConfirmFn = promptConfirm
)

// promptSecret prompts for a secret with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptSecret(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	secret, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	return secret, nil
}

// promptConfirm asks a yes/no question on stderr and reads the answer from stdin.
func promptConfirm(question string) bool {
	return confirmFrom(os.Stdin, os.Stderr, question)
}

func confirmFrom(r io.Reader, w io.Writer, question string) bool {
	out(w, "%s [y/N]: ", question)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

// zero overwrites b.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// isTerminalFn reports whether stdin is an interactive terminal.
//
//nolint:gochecknoglobals // Swappable prompt hook
var isTerminalFn = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // fd fits in int
}
