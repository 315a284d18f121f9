// Package opconsole gates mission-sequencer transitions on exact-match
// operator keyboard input.
package opconsole

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console reads sequential exact-match prompts from an input stream.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
}

// New wraps the given reader/writer pair (typically os.Stdin/os.Stdout).
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Prompt writes the prompt text and blocks until the operator types
// exactly one of want, returning the match. Anything else re-prompts.
func (c *Console) Prompt(prompt string, want ...string) (string, error) {
	for {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, strings.Join(want, "/"))
		line, err := c.in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read operator input: %w", err)
		}
		line = strings.TrimSpace(line)
		for _, w := range want {
			if line == w {
				return w, nil
			}
		}
		fmt.Fprintf(c.out, "unrecognised input %q, expected exact match\n", line)
	}
}
