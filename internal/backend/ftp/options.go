// Package ftp implements the FTP/FTPS remote backend (C4): a plain
// connection-backed implementation, a cached variant that memoizes
// per-folder directory listings, and a boosted variant that walks path
// prefixes to short-circuit lookups under a known-missing subtree.
//
// Grounded on backend/ftp/ftp.go's connection and option handling (Options,
// tlsConfig, ftpConnection) and on
// original_source/publisher/worker/managers/backends.py's
// FTPUploadBackEnd / CachedFTPUploadBackEnd / BoostedFTPUploadBackEnd.
package ftp

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// Options configures a connection to one FTP/FTPS host.
type Options struct {
	Host string
	Port int
	User string
	Pass string

	// TLS enables implicit FTPS (TLS from the first byte).
	TLS bool
	// ExplicitTLS enables explicit FTPS (AUTH TLS after a plaintext
	// control-channel handshake).
	ExplicitTLS bool

	Timeout time.Duration
}

func (o Options) addr() string {
	port := o.Port
	if port == 0 {
		port = 21
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

func (o Options) tlsConfig() *tls.Config {
	if !o.TLS && !o.ExplicitTLS {
		return nil
	}
	return &tls.Config{ServerName: o.Host}
}
