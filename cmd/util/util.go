package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sftpsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
	exit             = os.Exit
)

// HandleFatalError prints the error and exits. Friendly errors are printed
// without the context that was added on the way up the stack.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")

	var friendly errors.FriendlyError
	if errors.As(err, &friendly) {
		fmt.Fprintln(stderr, friendly.FriendlyMessage())
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs any panic with its stack trace before exiting. It must be
// deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Debug("Panic")
		fmt.Fprintf(stderr, "Unexpected error: %v\n"+
			"Rerun with SFTPSYNC_LOG_VERBOSE=true for more details.\n", r)
		exit(1)
	}
}

// PromptYesOrNo asks the user a yes or no question. Anything other than
// "y" or "yes" is treated as no.
func PromptYesOrNo(prompt string) (bool, error) {
	fmt.Fprintf(stdout, "%s (y/N) ", prompt)
	answer, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.WithContext(err, "read input")
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
