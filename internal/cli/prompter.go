package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter asks yes/no questions before destructive operations.
type Prompter struct {
	reader *NonBlockingReader
	writer io.Writer
	// assumeYes answers every question with yes without reading input.
	assumeYes bool
}

// NewPrompter creates a prompter reading answers from reader.
func NewPrompter(reader io.Reader, writer io.Writer, assumeYes bool) *Prompter {
	return &Prompter{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		assumeYes: assumeYes,
	}
}

// Confirm prints question and waits for an answer. Anything other than
// y/yes counts as no, and so does end of input.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}

	if _, err := fmt.Fprint(p.writer, FormatPrompt(question+" [y/N]")); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	answer, err := p.reader.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
