// Package preview implements the live-preview core of the composer: a
// controller that owns a long-lived worker process holding renderable scene
// state, a request/response command protocol between the two, and named
// checkpoints that let edits replay against a prior state instead of
// rebuilding the scene from scratch.
package preview

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// CommandKind identifies the type of a command sent to the worker.
type CommandKind string

const (
	CommandLoadScene  CommandKind = "load_scene"
	CommandCheckpoint CommandKind = "checkpoint"
	CommandRestore    CommandKind = "restore"
	CommandRunCode    CommandKind = "run_code"
	CommandShutdown   CommandKind = "shutdown"
)

// Command is a single controller-to-worker request. The wire format is one
// JSON object per line on the worker's stdin. Commands are immutable once
// sent and every command produces exactly one Response, in send order.
type Command struct {
	Kind CommandKind `json:"kind"`
	ID   string      `json:"id,omitempty"`   // checkpoint identifier (checkpoint, restore)
	Code string      `json:"code,omitempty"` // scene source or code fragment (load_scene, run_code)
}

// Validate checks that the command carries the fields its kind requires.
func (c *Command) Validate() error {
	switch c.Kind {
	case CommandLoadScene, CommandRunCode:
		if c.Code == "" {
			return fmt.Errorf("%s command requires code", c.Kind)
		}
	case CommandCheckpoint, CommandRestore:
		if c.ID == "" {
			return fmt.Errorf("%s command requires a checkpoint id", c.Kind)
		}
	case CommandShutdown:
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// ResponseStatus reports whether a command succeeded.
type ResponseStatus string

const (
	StatusOk    ResponseStatus = "ok"
	StatusError ResponseStatus = "error"
)

// Response is a single worker-to-controller reply, one JSON object per line
// on the worker's stdout. It echoes the originating command's kind and
// checkpoint id so the controller can correlate without sequence numbers
// (the channel is a strict FIFO pipe).
type Response struct {
	Status  ResponseStatus `json:"status"`
	Kind    CommandKind    `json:"kind"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Result  string         `json:"result,omitempty"` // run_code evaluation result, empty for nil
}

// Ok reports whether the response indicates success.
func (r *Response) Ok() bool {
	return r.Status == StatusOk
}

// OkResponse builds a success response for the given command.
func OkResponse(cmd *Command) Response {
	return Response{Status: StatusOk, Kind: cmd.Kind, ID: cmd.ID}
}

// ErrorResponse builds an error response for the given command. The message
// is shown to the user verbatim next to the edit that caused it.
func ErrorResponse(cmd *Command, message string) Response {
	return Response{Status: StatusError, Kind: cmd.Kind, ID: cmd.ID, Message: message}
}

// maxLineSize bounds a single protocol line. Scene sources are generated
// text and stay well under this.
const maxLineSize = 8 * 1024 * 1024

// CommandWriter encodes commands onto the worker's stdin.
type CommandWriter struct {
	enc *json.Encoder
}

func NewCommandWriter(w io.Writer) *CommandWriter {
	return &CommandWriter{enc: json.NewEncoder(w)}
}

// Write validates and sends one command.
func (w *CommandWriter) Write(cmd *Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := w.enc.Encode(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// CommandReader decodes commands from the worker side of the pipe.
type CommandReader struct {
	scanner *bufio.Scanner
}

func NewCommandReader(r io.Reader) *CommandReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &CommandReader{scanner: scanner}
}

// Read returns the next command, io.EOF when the channel closes cleanly, or
// an error for a malformed line. A malformed line is a transport fault, not
// a command the worker can answer.
func (r *CommandReader) Read() (*Command, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var cmd Command
	if err := json.Unmarshal(r.scanner.Bytes(), &cmd); err != nil {
		return nil, fmt.Errorf("malformed command line: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// ResponseWriter encodes responses onto the worker's stdout.
type ResponseWriter struct {
	enc *json.Encoder
}

func NewResponseWriter(w io.Writer) *ResponseWriter {
	return &ResponseWriter{enc: json.NewEncoder(w)}
}

func (w *ResponseWriter) Write(resp *Response) error {
	if err := w.enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// ResponseReader decodes responses on the controller side of the pipe.
type ResponseReader struct {
	scanner *bufio.Scanner
}

func NewResponseReader(r io.Reader) *ResponseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &ResponseReader{scanner: scanner}
}

// Read returns the next response, io.EOF when the worker closed its end, or
// an error for a malformed line.
func (r *ResponseReader) Read() (*Response, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var resp Response
	if err := json.Unmarshal(r.scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("malformed response line: %w", err)
	}
	return &resp, nil
}
