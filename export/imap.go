package export

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const defaultFolderPrefix = "RSMF"

type IMAPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// FolderPrefix is the parent mailbox under which one mailbox per channel
	// is created; defaults to "RSMF".
	FolderPrefix string
	DryRun       bool
}

// IMAPAppender uploads units into per-channel mailboxes. The connection is
// dialed on the first real append, so a dry run never touches the network.
type IMAPAppender struct {
	opts    IMAPOptions
	logger  *slog.Logger
	client  *imapclient.Client
	cleanup func()
	ensured map[string]bool
}

func NewIMAPAppender(opts IMAPOptions, logger *slog.Logger) (*IMAPAppender, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPAppender{
		opts:    opts,
		logger:  logger,
		ensured: map[string]bool{},
	}, nil
}

func (a *IMAPAppender) Append(ctx context.Context, unit Unit) error {
	mailbox := a.mailboxFor(unit.Channel)

	if a.opts.DryRun {
		a.logger.Debug("dry-run upload", "entry", unit.Entry, "mailbox", mailbox)
		return nil
	}

	if a.client == nil {
		if err := a.dial(ctx); err != nil {
			return err
		}
	}

	if !a.ensured[mailbox] {
		if err := a.ensureMailbox(mailbox); err != nil {
			return err
		}
		a.ensured[mailbox] = true
	}

	if err := a.appendUnit(mailbox, unit); err != nil {
		return err
	}
	a.logger.Debug("uploaded unit", "entry", unit.Entry, "mailbox", mailbox)
	return nil
}

func (a *IMAPAppender) Close() error {
	if a.cleanup != nil {
		a.cleanup()
	}
	return nil
}

func (a *IMAPAppender) mailboxFor(channel string) string {
	prefix := a.opts.FolderPrefix
	if prefix == "" {
		prefix = defaultFolderPrefix
	}
	return prefix + "/" + channel
}

func (a *IMAPAppender) dial(ctx context.Context) error {
	address := net.JoinHostPort(a.opts.Host, strconv.Itoa(a.opts.Port))
	options := &imapclient.Options{}

	if a.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         a.opts.Host,
			InsecureSkipVerify: a.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if a.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(a.opts.Username, a.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("imap login failed: %w", err)
	}

	a.logger.Debug("imap connection established",
		"address", address, "user", a.opts.Username, "tls", a.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	a.client = client
	a.cleanup = func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				a.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			a.logger.Debug("imap connection closed", "err", err)
		}
	}
	return nil
}

func (a *IMAPAppender) ensureMailbox(mailbox string) error {
	cmd := a.client.Create(mailbox, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			a.logger.Debug("imap mailbox already exists", "mailbox", mailbox)
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", mailbox, err)
	}
	a.logger.Info("imap mailbox created", "mailbox", mailbox)
	return nil
}

func (a *IMAPAppender) appendUnit(mailbox string, unit Unit) error {
	var opts *imapv2.AppendOptions
	if !unit.Date.IsZero() {
		opts = &imapv2.AppendOptions{Time: unit.Date}
	}

	cmd := a.client.Append(mailbox, int64(len(unit.Raw)), opts)

	remaining := unit.Raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}
