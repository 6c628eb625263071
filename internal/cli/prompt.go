package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/queue"
)

var choiceLabels = map[queue.Choice]string{
	queue.ChoiceCancel:       "Cancel - Stop the batch",
	queue.ChoiceOverwrite:    "Overwrite (once) - Replace this target, ask again for the next",
	queue.ChoiceOverwriteAll: "Overwrite (do for all) - Replace all existing targets",
	queue.ChoiceSkip:         "Skip (once) - Leave this entry, ask again for the next",
	queue.ChoiceSkipAll:      "Skip (do for all) - Leave all entries failing the same way",
}

// prompter asks queue questions on a line based terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	m   messages.Supplier
}

func newPrompter(in io.Reader, out io.Writer, m messages.Supplier) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, m: m}
}

// Ask implements queue.PromptFunc.
func (p *prompter) Ask(ctx context.Context, q queue.Question) (queue.Choice, error) {
	fmt.Fprintln(p.out)
	if q.Kind == queue.QuestionConflict {
		fmt.Fprintln(p.out, p.m.Text(messages.PromptConflict, q.Path))
	} else {
		fmt.Fprintln(p.out, p.m.Text(messages.PromptError, queue.ErrorText(q.Err, p.m)))
	}
	fmt.Fprintln(p.out, "What would you like to do?")
	for i, c := range q.Choices {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, choiceLabels[c])
	}

	for {
		fmt.Fprintf(p.out, "Choose [1-%d]: ", len(q.Choices))
		line, err := p.readLine(ctx)
		if err != nil {
			return queue.ChoiceCancel, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(q.Choices) {
			return q.Choices[n-1], nil
		}
		fmt.Fprintln(p.out, "Invalid choice, please try again.")
	}
}

// confirm asks a yes/no question; anything but y or yes is no.
func (p *prompter) confirm(ctx context.Context, question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	line = strings.ToLower(line)
	return line == "y" || line == "yes", nil
}

// readLine reads one trimmed line. It gives up when ctx is done; the
// pending read is left to the process exit.
func (p *prompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// isInteractive reports whether stdin is a terminal.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassword reads a password from the terminal without echo.
func readPassword(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
