package wallet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"
)

var errNoTerminal = errors.New("approval needs an interactive terminal")

// TerminalApprover asks on the daemon's terminal before connecting an
// account or signing a transaction. Prompts are serialized.
type TerminalApprover struct {
	In  *os.File
	Out io.Writer

	// Secret, when set, is used instead of prompting for the passphrase.
	Secret string

	mu sync.Mutex
}

func NewTerminalApprover() *TerminalApprover {
	return &TerminalApprover{In: os.Stdin, Out: os.Stderr}
}

func (a *TerminalApprover) Approve(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !term.IsTerminal(int(a.In.Fd())) {
		return errNoTerminal
	}
	fmt.Fprintf(a.Out, "Approve request: %s? [y/N] ", req)
	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read approval: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return ErrUserRejected
	}
}

func (a *TerminalApprover) Passphrase(ctx context.Context, account common.Address) (string, error) {
	if a.Secret != "" {
		return a.Secret, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fd := int(a.In.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprintf(a.Out, "Passphrase for %s: ", account.Hex())
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(a.Out)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", ErrUserRejected
	}
	return string(b), nil
}
