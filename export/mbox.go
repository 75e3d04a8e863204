package export

import (
	"context"
	"fmt"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// MboxAppender writes units into a single mbox file. The sending "from" of
// each mbox separator line is the unit's custodian.
type MboxAppender struct {
	file   *os.File
	writer *mboxlib.Writer
}

func NewMboxAppender(path string) (*MboxAppender, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create mbox: %w", err)
	}
	return &MboxAppender{
		file:   file,
		writer: mboxlib.NewWriter(file),
	}, nil
}

func (a *MboxAppender) Append(ctx context.Context, unit Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := a.writer.CreateMessage(unit.Custodian, unit.Date)
	if err != nil {
		return fmt.Errorf("create mbox message: %w", err)
	}
	if _, err := w.Write(unit.Raw); err != nil {
		return fmt.Errorf("write mbox message: %w", err)
	}
	return nil
}

func (a *MboxAppender) Close() error {
	if err := a.writer.Close(); err != nil {
		a.file.Close()
		return fmt.Errorf("close mbox writer: %w", err)
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close mbox file: %w", err)
	}
	return nil
}
