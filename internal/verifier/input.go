package verifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSigningKey prompts on w and reads the signing key from the terminal
// without echo.
func GetSigningKey(w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Enter signing key: "); err != nil {
		return "", err
	}
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(key))
	if s == "" {
		return "", errors.New("empty signing key")
	}
	return s, nil
}
