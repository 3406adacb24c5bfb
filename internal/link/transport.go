package link

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// Transport opens the encrypted stream socket to the hub. An empty
// TrustRootFile selects plain TCP, the development mode.
type Transport struct {
	Addr             string
	TrustRootFile    string
	ServerName       string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
}

func (t Transport) Dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: t.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.TrustRootFile) == "" {
		return rawConn, nil
	}

	tlsCfg, err := t.tlsConfig()
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, t.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (t Transport) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	serverName := strings.TrimSpace(t.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(t.Addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	caPEM, err := os.ReadFile(t.TrustRootFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("link: parse trust root bundle: %s", t.TrustRootFile)
	}
	// Self-signed hub certificates verify by living in the pool directly.
	cfg.RootCAs = pool
	return cfg, nil
}

// isTransientDialError reports whether a connect failure should enter the
// backoff path. Anything else (DNS failure, TLS trust failure) surfaces to
// the caller instead of looping.
func isTransientDialError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
