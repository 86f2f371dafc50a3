// Package repl implements the interactive command loop: a single-threaded,
// cooperative read-eval-print loop with line history and tab completion
// sourced from the operation catalog.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

// LineReader yields one line of input per call. It returns io.EOF on
// end-of-input and on an interrupt signal at the prompt; both close the loop.
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

// NewLineReader selects the reader once at startup: a readline-backed reader
// with history and tab completion when stdin is a terminal, a plain buffered
// reader otherwise.
func NewLineReader(prompt, historyFile string, candidates func() []string) LineReader {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		if r, err := newReadlineReader(prompt, historyFile, candidates); err == nil {
			return r
		}
	}
	return NewScannerReader(os.Stdin, os.Stdout, prompt)
}

type readlineReader struct {
	rl *readline.Instance
}

func newReadlineReader(prompt, historyFile string, candidates func() []string) (*readlineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		AutoComplete:    &wordCompleter{candidates: candidates},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &readlineReader{rl: rl}, nil
}

func (r *readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (r *readlineReader) Close() error { return r.rl.Close() }

// wordCompleter completes the word under the cursor from a dynamic candidate
// set: the fixed command words unioned with the current catalog names.
type wordCompleter struct {
	candidates func() []string
}

func (c *wordCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := 0
	for i := pos - 1; i >= 0; i-- {
		if line[i] == ' ' {
			start = i + 1
			break
		}
	}
	prefix := string(line[start:pos])

	var matches [][]rune
	for _, cand := range c.candidates() {
		if strings.HasPrefix(cand, prefix) {
			matches = append(matches, []rune(cand[len(prefix):]))
		}
	}
	return matches, len(prefix)
}

// scannerReader is the non-terminal fallback: prompt to the writer, one
// buffered line per read, no editing or completion.
type scannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string
}

// NewScannerReader creates the plain line reader.
func NewScannerReader(in io.Reader, out io.Writer, prompt string) LineReader {
	return &scannerReader{scanner: bufio.NewScanner(in), out: out, prompt: prompt}
}

func (r *scannerReader) ReadLine() (string, error) {
	fmt.Fprint(r.out, r.prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error { return nil }
