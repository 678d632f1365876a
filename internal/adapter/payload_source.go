package adapter

import (
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
)

// PayloadSource supplies the raw payload text for one ingestion. The payload
// is ephemeral: read once, handed to the parser, never persisted.
type PayloadSource interface {
	Read() (string, error)

	// Name identifies the source for the audit log.
	Name() string
}

type readerSource struct {
	r    io.Reader
	name string
}

// NewStdinSource reads the payload from the provided reader (stdin in
// production; any reader in tests).
func NewStdinSource(r io.Reader) PayloadSource {
	return &readerSource{r: r, name: "stdin"}
}

func (s *readerSource) Read() (string, error) {
	data, err := io.ReadAll(s.r)
	if err != nil {
		return "", fmt.Errorf("reading payload from %s: %w", s.name, err)
	}

	return string(data), nil
}

func (s *readerSource) Name() string {
	return s.name
}

type fileSource struct {
	path string
}

// NewFileSource reads the payload from a file.
func NewFileSource(path string) PayloadSource {
	return &fileSource{path: path}
}

func (s *fileSource) Read() (string, error) {
	// #nosec G304 - the operator names the payload file explicitly
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("reading payload file: %w", err)
	}

	return string(data), nil
}

func (s *fileSource) Name() string {
	return "file:" + s.path
}

type clipboardSource struct{}

// NewClipboardSource reads the payload from the system clipboard.
func NewClipboardSource() PayloadSource {
	return &clipboardSource{}
}

func (s *clipboardSource) Read() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("reading payload from clipboard: %w", err)
	}

	return text, nil
}

func (s *clipboardSource) Name() string {
	return "clipboard"
}
