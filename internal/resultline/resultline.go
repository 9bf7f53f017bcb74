// Package resultline parses the plain-text result artifacts written by CI
// (successes, failures, no_screenshots). Each line has the shape
// "<category>/<name> - <freeform>".
package resultline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// ErrMalformedLine is wrapped by every ParseError.
var ErrMalformedLine = errors.New("malformed result line")

// ParseError reports a line that does not follow the result grammar.
type ParseError struct {
	File    string // empty when parsing a single line
	Line    int    // 1-based; 0 when parsing a single line
	Text    string
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s %q: %s", ErrMalformedLine, e.Text, e.Message)
	}
	return fmt.Sprintf("%s in %s:%d %q: %s", ErrMalformedLine, e.File, e.Line, e.Text, e.Message)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedLine
}

// Parse extracts the example identity from one result line.
func Parse(line string) (model.ExampleKey, error) {
	left, _, found := strings.Cut(line, " - ")
	if !found {
		return model.ExampleKey{}, &ParseError{Text: line, Message: `missing " - " separator`}
	}
	parts := strings.Split(left, "/")
	if len(parts) < 2 {
		return model.ExampleKey{}, &ParseError{Text: line, Message: `missing "/" between category and name`}
	}
	return model.ExampleKey{Category: parts[0], Name: parts[1]}, nil
}

// ParseReader parses every non-blank line of r. name is used in errors.
// The first malformed line aborts parsing.
func ParseReader(name string, r io.Reader) ([]model.ExampleKey, error) {
	var keys []model.ExampleKey
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, err := Parse(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.File = name
				pe.Line = lineNo
			}
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return keys, nil
}

// ParseFile opens path and parses it with ParseReader.
func ParseFile(path string) ([]model.ExampleKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ParseReader(path, f)
}
