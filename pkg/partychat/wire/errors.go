package wire

import "fmt"

// DecodeError reports a structurally malformed frame. Callers drop the
// frame and keep reading; a bad frame never tears down the connection.
type DecodeError struct {
	Command string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: malformed %s frame: %s", e.Command, e.Reason)
}

func errTruncated(command string) error {
	return &DecodeError{Command: command, Reason: "missing header terminator"}
}

func errBadHeader(command, line string) error {
	return &DecodeError{Command: command, Reason: fmt.Sprintf("header line %q has no colon", line)}
}
