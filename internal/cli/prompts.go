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
//nolint:gochecknoglobals // swapped by tests
var (
	promptConfirmFn    = promptConfirm
	promptPassphraseFn = promptPassphrase
)

// promptPassphrase reads the engine passphrase with hidden input.
func promptPassphrase() (string, error) {
	_, _ = fmt.Fprint(os.Stderr, "Engine passphrase: ")

	pw, err := term.ReadPassword(syscall.Stdin)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

// promptConfirm asks a yes/no question on stderr. Anything but y or yes is no.
func promptConfirm(question string) bool {
	return readConfirm(os.Stdin, os.Stderr, question)
}

func readConfirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
