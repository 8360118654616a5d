// Package docinbox retrieves partner-uploaded loan documents from an
// FTP drop. The drop holds one directory per loan number under a
// configured root.
package docinbox

import (
	"context"
	"io"
	"net"
	"path"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// Options configures the inbox connection.
type Options struct {
	Host     string // host or host:port; port 21 assumed when absent
	User     string
	Password string
	Root     string // base directory holding one folder per loan number
	Timeout  time.Duration
}

// Inbox lists and fetches documents for a loan.
type Inbox struct {
	opts Options
}

// New creates an Inbox with the given options.
func New(opts Options) *Inbox {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &Inbox{opts: opts}
}

// hostPort appends the default FTP port when the host carries none.
func (ib *Inbox) hostPort() string {
	host := ib.opts.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host
}

// loanDir is the drop directory for one loan.
func (ib *Inbox) loanDir(loanNumber string) string {
	return path.Join(ib.opts.Root, loanNumber)
}

func (ib *Inbox) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(ib.hostPort(), ftp.DialWithTimeout(ib.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "docinbox: dial")
	}
	if err := conn.Login(ib.opts.User, ib.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "docinbox: login")
	}
	return conn, nil
}

// ListDocuments returns the file names in the loan's drop directory,
// sorted for deterministic reports. A missing directory is treated as
// an empty inbox.
func (ib *Inbox) ListDocuments(ctx context.Context, loanNumber string) ([]string, error) {
	conn, err := ib.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	dir := ib.loanDir(loanNumber)
	entries, err := conn.List(dir)
	if err != nil {
		zap.L().Debug("docinbox: list failed, treating as empty",
			zap.String("dir", dir), zap.Error(err))
		return nil, nil
	}

	var names []string
	for _, e := range entries {
		if e.Type == ftp.EntryTypeFile {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the
// reader also closes the FTP response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "docinbox: close response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "docinbox: quit connection")
	}
	return nil
}

// Fetch retrieves one document from the loan's drop directory. The
// caller must close the returned ReadCloser to release the connection.
func (ib *Inbox) Fetch(ctx context.Context, loanNumber, name string) (io.ReadCloser, error) {
	conn, err := ib.dial(ctx)
	if err != nil {
		return nil, err
	}

	target := path.Join(ib.loanDir(loanNumber), name)
	zap.L().Debug("docinbox: fetching", zap.String("path", target))

	resp, err := conn.Retr(target)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "docinbox: retrieve %s", target)
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// FetchAll downloads every document in the loan's drop directory over a
// single connection, in name order.
func (ib *Inbox) FetchAll(ctx context.Context, loanNumber string) ([]model.Document, error) {
	names, err := ib.ListDocuments(ctx, loanNumber)
	if err != nil || len(names) == 0 {
		return nil, err
	}

	conn, err := ib.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	docs := make([]model.Document, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "docinbox: fetch all")
		}

		target := path.Join(ib.loanDir(loanNumber), name)
		resp, err := conn.Retr(target)
		if err != nil {
			return nil, eris.Wrapf(err, "docinbox: retrieve %s", target)
		}
		data, err := io.ReadAll(resp)
		resp.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "docinbox: read %s", target)
		}

		docs = append(docs, model.Document{
			Name:    name,
			Source:  model.DocSourceInbox,
			Content: data,
		})
	}
	return docs, nil
}
