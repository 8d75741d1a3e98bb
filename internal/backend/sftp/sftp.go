// Package sftp implements the SFTP remote backend (C5): password, private
// key, and ssh-agent authentication, plus a live-hosting variant adding
// symlink-aware operations.
//
// Grounded on backend/sftp/sftp.go's dial/session plumbing
// (ssh.ClientConfig construction, sftp.NewClientPipe-style session setup)
// and original_source/publisher/worker/managers/backends.py's
// SFTPUploadBackEnd / PKeySFTPUploadBackEnd / LiveHostingSFTPBackEnd
// (paramiko equivalents).
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	intbackend "github.com/sitehost/publisher/internal/backend"
)

// Options configures a connection to one SFTP host. Exactly one of Pass,
// KeyPEM, or UseAgent should be set; authMethods checks KeyPEM first,
// then UseAgent, and falls back to Pass, mirroring init_manager's selection between SFTPUploadBackEnd and
// PKeySFTPUploadBackEnd in
// original_source/publisher/worker/managers/__init__.py.
type Options struct {
	Host string
	Port int
	User string

	Pass string

	// KeyPEM is a PEM-encoded private key (optionally passphrase
	// protected via KeyPassphrase).
	KeyPEM         []byte
	KeyPassphrase  string
	UseAgent       bool

	// InsecureCiphers allows legacy SFTP servers that only speak
	// deprecated ciphers, matching sftp.go's UseInsecureCipher option.
	InsecureCiphers bool

	Timeout time.Duration
}

func (o Options) addr() string {
	port := o.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

// Backend is the plain SFTP remote backend.
type Backend struct {
	opts   Options
	client *ssh.Client
	sftp   *sftp.Client
}

// New constructs an unconnected Backend for opts.
func New(opts Options) *Backend {
	return &Backend{opts: opts}
}

var _ intbackend.Backend = (*Backend)(nil)

func (b *Backend) String() string { return "sftp:" + b.opts.Host }

func (b *Backend) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	switch {
	case len(b.opts.KeyPEM) > 0:
		var signer ssh.Signer
		var err error
		if b.opts.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(b.opts.KeyPEM, []byte(b.opts.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(b.opts.KeyPEM)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	case b.opts.UseAgent:
		agentClient, _, err := sshagent.New()
		if err != nil {
			return nil, fmt.Errorf("connect to ssh-agent: %w", err)
		}
		signers, err := agentClient.Signers()
		if err != nil {
			return nil, fmt.Errorf("list ssh-agent keys: %w", err)
		}
		methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			return signers, nil
		}))
	default:
		methods = append(methods, ssh.Password(b.opts.Pass))
	}
	return methods, nil
}

func (b *Backend) cipherConfig() ssh.Config {
	cfg := ssh.Config{}
	if b.opts.InsecureCiphers {
		cfg.Ciphers = append(cfg.Ciphers, "aes128-cbc", "3des-cbc")
	}
	return cfg
}

// Connect dials the SSH transport and opens an SFTP subsystem session,
// mirroring sftp.go's dial()+newSftpClient() pair.
func (b *Backend) Connect(ctx context.Context) error {
	methods, err := b.authMethods()
	if err != nil {
		return err
	}
	config := &ssh.ClientConfig{
		User:            b.opts.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         b.opts.Timeout,
		Config:          b.cipherConfig(),
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", b.opts.addr())
	if err != nil {
		return fmt.Errorf("sftp dial: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, b.opts.addr(), config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("open sftp subsystem: %w", err)
	}
	b.client = client
	b.sftp = sftpClient
	return nil
}

func (b *Backend) Quit(ctx context.Context) error {
	if b.sftp != nil {
		_ = b.sftp.Close()
		b.sftp = nil
	}
	if b.client != nil {
		err := b.client.Close()
		b.client = nil
		return err
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := b.sftp.Stat(p)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) Type(ctx context.Context, p string) (intbackend.EntryType, error) {
	info, err := b.sftp.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return intbackend.TypeUnknown, nil
		}
		return intbackend.TypeUnknown, err
	}
	if info.IsDir() {
		return intbackend.TypeDir, nil
	}
	return intbackend.TypeFile, nil
}

func (b *Backend) Size(ctx context.Context, p string) (int64, error) {
	info, err := b.sftp.Stat(p)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *Backend) Dir(ctx context.Context, p string) ([]string, error) {
	infos, err := b.sftp.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (b *Backend) Download(ctx context.Context, p string, w io.Writer) error {
	f, err := b.sftp.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (b *Backend) Upload(ctx context.Context, p string, r io.Reader) error {
	f, err := b.sftp.Create(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func (b *Backend) Mkdir(ctx context.Context, p string) error {
	err := b.sftp.Mkdir(p)
	if err != nil && isExist(err) {
		return nil
	}
	return err
}

func (b *Backend) DeleteFile(ctx context.Context, p string) error {
	return b.sftp.Remove(p)
}

func (b *Backend) DeleteDirectory(ctx context.Context, p string) error {
	return b.sftp.RemoveDirectory(p)
}

// Chmod applies an octal permission string (e.g. "755"), matching
// backends.py's SFTPUploadBackEnd.chmod int(chmod, 8) conversion.
func (b *Backend) Chmod(ctx context.Context, p string, mode string) error {
	perm, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid chmod mode %q: %w", mode, err)
	}
	return b.sftp.Chmod(p, os.FileMode(perm))
}

func (b *Backend) EraseDirectory(ctx context.Context, p string) error {
	infos, err := b.sftp.ReadDir(p)
	if err != nil {
		return err
	}
	for _, info := range infos {
		child := path.Join(p, info.Name())
		if info.IsDir() {
			if err := b.EraseDirectory(ctx, child); err != nil {
				return err
			}
			continue
		}
		if err := b.DeleteFile(ctx, child); err != nil {
			return err
		}
	}
	return b.DeleteDirectory(ctx, p)
}

func isNotExist(err error) bool {
	se, ok := err.(*sftp.StatusError)
	return ok && se.Code() == uint32(sftp.ErrSSHFxNoSuchFile)
}

func isExist(err error) bool {
	se, ok := err.(*sftp.StatusError)
	return ok && se.Code() == uint32(sftp.ErrSSHFxFailure)
}
