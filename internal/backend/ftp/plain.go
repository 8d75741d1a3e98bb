package ftp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"

	"github.com/jlaffaye/ftp"
	"github.com/sitehost/publisher/internal/backend"
	"github.com/sitehost/publisher/internal/fserrors"
	"github.com/sitehost/publisher/internal/listparser"
	"github.com/sitehost/publisher/internal/plog"
)

// Backend is the plain FTP/FTPS remote backend. It wires
// github.com/jlaffaye/ftp for every control operation that library
// exposes (dial, login, change dir, stor, retr, delete, mkdir, rmdir,
// file size) and falls back to a short-lived raw control connection
// (net/textproto) for the two operations jlaffaye/ftp has no surface
// for: a raw LIST listing (fed to internal/listparser) and SITE CHMOD.
type Backend struct {
	opts Options
	conn *ftp.ServerConn
}

// New constructs an unconnected Backend for opts.
func New(opts Options) *Backend {
	return &Backend{opts: opts}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) String() string { return "ftp:" + b.opts.Host }

// Connect dials and logs in. Grounded on backend/ftp/ftp.go's
// ftpConnection: ftp.Dial with an optional TLS config, then Login.
func (b *Backend) Connect(ctx context.Context) error {
	dialOpts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if tlsConfig := b.opts.tlsConfig(); tlsConfig != nil {
		if b.opts.ExplicitTLS {
			dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(tlsConfig))
		} else {
			dialOpts = append(dialOpts, ftp.DialWithTLS(tlsConfig))
		}
	}
	c, err := ftp.Dial(b.opts.addr(), dialOpts...)
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	if err := c.Login(b.opts.User, b.opts.Pass); err != nil {
		_ = c.Quit()
		return fmt.Errorf("ftp login: %w", err)
	}
	b.conn = c
	return nil
}

// Quit closes the control connection.
func (b *Backend) Quit(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Quit()
	b.conn = nil
	return err
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	typ, err := b.Type(ctx, path)
	if err != nil {
		return false, err
	}
	return typ != backend.TypeUnknown, nil
}

// Type determines whether path is a file, a directory, or absent by
// listing its parent and matching the base name — jlaffaye/ftp has no
// single-path stat call, mirroring the FTP protocol's own lack of one.
func (b *Backend) Type(ctx context.Context, path string) (backend.EntryType, error) {
	parent, name := splitPath(path)
	entries, err := b.dirEntries(ctx, parent)
	if err != nil {
		return backend.TypeUnknown, err
	}
	for _, e := range entries {
		if e.Name == name {
			if e.Type == ftp.EntryTypeFolder {
				return backend.TypeDir, nil
			}
			return backend.TypeFile, nil
		}
	}
	return backend.TypeUnknown, nil
}

// Dir lists the immediate child names of path, leaving out the "." and
// ".." entries a LIST -a response carries.
func (b *Backend) Dir(ctx context.Context, path string) ([]string, error) {
	entries, err := b.dirEntries(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		names = append(names, e.Name)
	}
	return names, nil
}

// dirEntries issues its own raw control-channel LIST round trip and
// parses the result with internal/listparser (C1) — the actual line
// formats a remote can return vary enough across servers that relying on
// jlaffaye/ftp's own (already-parsed) Entry results would leave C1 dead
// code on the normal path. jlaffaye/ftp's List() is kept only as a
// fallback for a server whose control channel rejects the raw LIST
// command outright (some FTPS servers refuse a second data-channel
// command shape); in that case its own parser's result is used instead.
func (b *Backend) dirEntries(ctx context.Context, path string) ([]*ftp.Entry, error) {
	lines, rawErr := b.rawList(path)
	if rawErr == nil {
		parsed, perr := listparser.ParseAll(lines)
		if perr != nil {
			return nil, fserrors.NewNoRetry("raw LIST parse failure", perr)
		}
		out := make([]*ftp.Entry, 0, len(parsed))
		for _, p := range parsed {
			typ := ftp.EntryTypeFile
			if p.Type == listparser.TypeDir {
				typ = ftp.EntryTypeFolder
			}
			out = append(out, &ftp.Entry{Name: p.Name, Type: typ})
		}
		return out, nil
	}
	plog.Debugf(b, "raw LIST(%s) failed (%v), falling back to jlaffaye/ftp's List()", path, rawErr)
	entries, err := b.conn.List(path)
	if err != nil {
		return nil, rawErr
	}
	return entries, nil
}

func (b *Backend) Size(ctx context.Context, path string) (int64, error) {
	size, err := b.conn.FileSize(path)
	if err != nil {
		return 0, err
	}
	return size, nil
}

func (b *Backend) Download(ctx context.Context, path string, w io.Writer) error {
	r, err := b.conn.Retr(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}

func (b *Backend) Upload(ctx context.Context, path string, r io.Reader) error {
	return b.conn.Stor(path, r)
}

// Mkdir creates a directory, treating the "already exists" family of FTP
// responses as success, matching ftp.go's mkdir handling of status codes
// 250/550/521.
func (b *Backend) Mkdir(ctx context.Context, path string) error {
	err := b.conn.MakeDir(path)
	if err == nil {
		return nil
	}
	var protoErr *textproto.Error
	if asTextprotoError(err, &protoErr) {
		switch protoErr.Code {
		case 250, 550, 521:
			return nil
		}
	}
	return err
}

func (b *Backend) DeleteFile(ctx context.Context, path string) error {
	return b.conn.Delete(path)
}

func (b *Backend) DeleteDirectory(ctx context.Context, path string) error {
	return b.conn.RemoveDir(path)
}

// Chmod sends a raw SITE CHMOD command over a short-lived secondary
// control connection, since jlaffaye/ftp exposes no raw command
// passthrough. Mirrors backends.py's
// `_ftp.voidcmd("SITE CHMOD %s %s" % (chmod, filename))`, including its
// tolerance of servers that reject SITE CHMOD outright (some FTP servers
// don't implement it; the original swallows non-IOError failures there).
func (b *Backend) Chmod(ctx context.Context, path string, mode string) error {
	raw, err := b.dialRaw(ctx)
	if err != nil {
		return err
	}
	defer raw.quit()
	_, _, err = raw.cmd(fmt.Sprintf("SITE CHMOD %s %s", mode, path))
	if err != nil {
		plog.Debugf(b, "SITE CHMOD not supported or failed for %s (ignored): %v", path, err)
		return nil
	}
	return nil
}

// EraseDirectory recursively removes path and everything beneath it.
func (b *Backend) EraseDirectory(ctx context.Context, path string) error {
	entries, err := b.dirEntries(ctx, path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := path + "/" + e.Name
		if e.Type == ftp.EntryTypeFolder {
			if err := b.EraseDirectory(ctx, child); err != nil {
				return err
			}
			continue
		}
		if err := b.DeleteFile(ctx, child); err != nil {
			return err
		}
	}
	return b.DeleteDirectory(ctx, path)
}

func splitPath(path string) (parent, name string) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ".", path
	}
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}

func asTextprotoError(err error, target **textproto.Error) bool {
	if pe, ok := err.(*textproto.Error); ok {
		*target = pe
		return true
	}
	return false
}

// rawConn is a short-lived secondary control connection used only for
// commands jlaffaye/ftp does not expose (SITE CHMOD, and the raw LIST that
// dirEntries tries before falling back to List()).
type rawConn struct {
	conn net.Conn
	tp   *textproto.Conn
}

func (b *Backend) dialRaw(ctx context.Context) (*rawConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", b.opts.addr())
	if err != nil {
		return nil, err
	}
	tp := textproto.NewConn(conn)
	if _, _, err := tp.ReadResponse(2); err != nil {
		conn.Close()
		return nil, err
	}
	rc := &rawConn{conn: conn, tp: tp}
	if _, _, err := rc.cmd("USER " + b.opts.User); err != nil {
		rc.quit()
		return nil, err
	}
	if _, _, err := rc.cmd("PASS " + b.opts.Pass); err != nil {
		rc.quit()
		return nil, err
	}
	return rc, nil
}

func (rc *rawConn) cmd(command string) (int, string, error) {
	id, err := rc.tp.Cmd("%s", command)
	if err != nil {
		return 0, "", err
	}
	rc.tp.StartResponse(id)
	defer rc.tp.EndResponse(id)
	code, msg, err := rc.tp.ReadResponse(-1)
	if err != nil {
		return code, msg, err
	}
	if code/100 >= 4 {
		return code, msg, &textproto.Error{Code: code, Msg: msg}
	}
	return code, msg, nil
}

func (rc *rawConn) quit() {
	_, _, _ = rc.cmd("QUIT")
	rc.conn.Close()
}

// rawList retrieves raw, unparsed LIST -a lines over a passive-mode data
// connection opened on the secondary raw control connection.
func (b *Backend) rawList(path string) ([]string, error) {
	raw, err := b.dialRaw(context.Background())
	if err != nil {
		return nil, err
	}
	defer raw.quit()

	_, msg, err := raw.cmd("PASV")
	if err != nil {
		return nil, err
	}
	addr, err := parsePasvAddr(msg)
	if err != nil {
		return nil, err
	}
	data, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer data.Close()

	cmd := "LIST -a"
	if path != "" && path != "." {
		cmd = "LIST -a " + path
	}
	if _, _, err := raw.cmd(cmd); err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(data)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if _, _, err := raw.tp.ReadResponse(2); err != nil {
		return nil, err
	}
	return lines, nil
}

// parsePasvAddr parses a "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)"
// response into a dialable "host:port" string.
func parsePasvAddr(msg string) (string, error) {
	open := strings.Index(msg, "(")
	close := strings.Index(msg, ")")
	if open < 0 || close < 0 || close < open {
		return "", fmt.Errorf("malformed PASV response: %q", msg)
	}
	parts := strings.Split(msg[open+1:close], ",")
	if len(parts) != 6 {
		return "", fmt.Errorf("malformed PASV response: %q", msg)
	}
	host := strings.Join(parts[0:4], ".")
	p1, p2 := 0, 0
	fmt.Sscanf(parts[4], "%d", &p1)
	fmt.Sscanf(parts[5], "%d", &p2)
	port := p1*256 + p2
	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
}
