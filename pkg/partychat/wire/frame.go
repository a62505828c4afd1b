// Package wire implements the text subprotocol spoken over the chat socket.
//
// One frame is COMMAND, a run of "key:value" header lines, a blank line,
// and a body terminated by a single NUL. A frame whose first line is empty
// is a heartbeat ping and carries no further structure.
package wire

import "strings"

// Commands understood by this client. The server may send commands outside
// this set; they still decode so callers can ignore them.
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandMessage     = "MESSAGE"
	CommandError       = "ERROR"
)

// Header names used by the subprotocol.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHeartBeat     = "heart-beat"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderContentType   = "content-type"
)

// Heartbeat is the client-to-server keepalive payload: an empty line,
// no command, no terminator.
const Heartbeat = "\n"

const terminator = "\x00"

// Frame is one decoded unit of the subprotocol.
type Frame struct {
	Command string
	Headers map[string]string
	Body    string
}

// Header returns the named header or "" when absent.
func (f *Frame) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[name]
}

// Encode renders a frame. It always appends exactly one NUL terminator.
// Header keys and values must not contain ':' or newlines and the body must
// not contain a NUL; Encode does not validate this.
func Encode(command string, headers map[string]string, body string) string {
	var sb strings.Builder
	sb.WriteString(command)
	sb.WriteByte('\n')
	for key, value := range headers {
		sb.WriteString(key)
		sb.WriteByte(':')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(body)
	sb.WriteString(terminator)
	return sb.String()
}

// Decode parses a raw frame. It returns (nil, nil) for a heartbeat ping
// (empty first line) and an error for structurally malformed input. Frames
// with commands this client does not recognize decode successfully.
func Decode(raw string) (*Frame, error) {
	head, rest, _ := strings.Cut(raw, "\n")
	command := strings.TrimSuffix(head, "\r")
	if command == "" {
		return nil, nil
	}

	frame := &Frame{
		Command: command,
		Headers: make(map[string]string),
	}

	for {
		var line string
		var ok bool
		line, rest, ok = strings.Cut(rest, "\n")
		if !ok && line == "" {
			// Ran out of input before the blank separator line.
			return nil, errTruncated(command)
		}
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errBadHeader(command, line)
		}
		frame.Headers[key] = value
	}

	frame.Body = strings.TrimSuffix(rest, terminator)
	return frame, nil
}
