package sink

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	pathlib "path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

// remoteFile is the handle slice of *sftp.File the sink uses.
type remoteFile interface {
	io.WriteCloser
	Seek(offset int64, whence int) (int64, error)
}

// sftpSession is the slice of *sftp.Client the sink uses. One session
// multiplexes every concurrent chunk write; each write holds its own file
// handle so offsets never interleave.
type sftpSession interface {
	OpenFile(path string, flags int) (remoteFile, error)
	MkdirAll(path string) error
	Close() error
}

// sshDialFunc dials the destination and returns an authenticated session.
type sshDialFunc func(ctx context.Context, addr string, config *ssh.ClientConfig) (sftpSession, error)

// SFTP writes chunks over a single multiplexed SFTP session.
type SFTP struct {
	dialTimeout time.Duration
	hostKey     ssh.HostKeyCallback
	dial        sshDialFunc

	mu      sync.Mutex
	session sftpSession
	dest    ferrytypes.Destination
}

// SFTPOption adjusts an SFTP sink.
type SFTPOption func(*SFTP)

// WithHostKeyCallback pins the server host key. The default accepts any host
// key, matching fleets where destination servers rotate keys freely.
func WithHostKeyCallback(cb ssh.HostKeyCallback) SFTPOption {
	return func(s *SFTP) {
		if cb != nil {
			s.hostKey = cb
		}
	}
}

// WithHandshakeTimeout bounds the TCP dial and SSH handshake.
func WithHandshakeTimeout(d time.Duration) SFTPOption {
	return func(s *SFTP) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// withSSHDialer replaces the network dialer. Test hook.
func withSSHDialer(dial sshDialFunc) SFTPOption {
	return func(s *SFTP) { s.dial = dial }
}

// NewSFTP returns an SFTP sink.
func NewSFTP(opts ...SFTPOption) *SFTP {
	s := &SFTP{
		dialTimeout: defaultDialTimeout,
		hostKey:     ssh.InsecureIgnoreHostKey(),
		dial:        dialSFTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sink = (*SFTP)(nil)

// sftpClientSession binds the SSH transport and the SFTP subsystem so both
// close together.
type sftpClientSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sftpClientSession) OpenFile(path string, flags int) (remoteFile, error) {
	return s.sftp.OpenFile(path, flags)
}

func (s *sftpClientSession) MkdirAll(path string) error { return s.sftp.MkdirAll(path) }

func (s *sftpClientSession) Close() error {
	err := s.sftp.Close()
	if cerr := s.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}

// dialSFTP is the production dialer.
func dialSFTP(ctx context.Context, addr string, config *ssh.ClientConfig) (sftpSession, error) {
	dialer := net.Dialer{Timeout: config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient, sftp.UseConcurrentWrites(true))
	if err != nil {
		_ = sshClient.Close()
		return nil, err
	}
	return &sftpClientSession{ssh: sshClient, sftp: sftpClient}, nil
}

// Connect dials the destination and opens the SFTP subsystem.
func (s *SFTP) Connect(ctx context.Context, dest ferrytypes.Destination, creds ferrytypes.SinkCredentials) error {
	const op = "sink.sftp.connect"
	if dest.Host == "" {
		return ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("destination host is required")
	}
	if creds.Username == "" {
		return ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("destination username is required")
	}

	auth, err := authMethods(creds)
	if err != nil {
		return err
	}
	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: s.hostKey,
		Timeout:         s.dialTimeout,
	}

	session, err := s.dial(ctx, dest.Addr(), config)
	if err != nil {
		return classifySFTPError(op, err).WithDest(dest.Addr())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		_ = session.Close()
		return ferryerrors.NewError(op, ferryerrors.KindInternal, ferryerrors.ErrInvalidInput).
			WithMessage("sink is already connected")
	}
	s.session = session
	s.dest = dest
	return nil
}

// authMethods builds the SSH authentication chain, key first so servers that
// accept both prefer it.
func authMethods(creds ferrytypes.SinkCredentials) ([]ssh.AuthMethod, error) {
	const op = "sink.sftp.connect"
	var methods []ssh.AuthMethod
	if len(creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, ferryerrors.NewError(op, ferryerrors.KindAuthorization, err).
				WithMessage("destination private key is malformed")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	if len(methods) == 0 {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("destination credentials carry neither password nor private key")
	}
	return methods, nil
}

// Prepare creates the remote directory chain and truncates any previous file
// at the target path.
func (s *SFTP) Prepare(ctx context.Context, remotePath string) error {
	const op = "sink.sftp.prepare"
	session := s.current()
	if session == nil {
		return notConnected(op)
	}
	if err := ctx.Err(); err != nil {
		return ferryerrors.NewError(op, ferryerrors.KindCancelled, err)
	}

	if dir := pathlib.Dir(remotePath); dir != "." && dir != "/" && dir != "" {
		if err := session.MkdirAll(dir); err != nil {
			return classifySFTPError(op, err).WithDest(s.addr())
		}
	}
	f, err := session.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return classifySFTPError(op, err).WithDest(s.addr())
	}
	if err := f.Close(); err != nil {
		return classifySFTPError(op, err).WithDest(s.addr())
	}
	return nil
}

// WriteAt opens its own handle on the remote file, seeks to the chunk
// offset, and streams the reader. Handles are per call, so concurrent chunk
// writers never share a file position.
func (s *SFTP) WriteAt(ctx context.Context, remotePath string, offset int64, r io.Reader) (int64, error) {
	const op = "sink.sftp.write"
	session := s.current()
	if session == nil {
		return 0, notConnected(op)
	}
	if err := ctx.Err(); err != nil {
		return 0, ferryerrors.NewError(op, ferryerrors.KindCancelled, err)
	}

	f, err := session.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE)
	if err != nil {
		return 0, classifySFTPError(op, err).WithDest(s.addr())
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return 0, classifySFTPError(op, err).WithDest(s.addr())
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, classifySFTPError(op, err).WithDest(s.addr())
	}
	return n, nil
}

// Close tears down the SFTP subsystem and the SSH transport.
func (s *SFTP) Close() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

func (s *SFTP) current() sftpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *SFTP) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dest.Addr()
}

// classifySFTPError sorts SSH and SFTP failures into the error taxonomy.
// The sftp library normalises remote status codes onto fs sentinel errors.
func classifySFTPError(op string, err error) *ferryerrors.Error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ferryerrors.NewError(op, ferryerrors.KindCancelled, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return ferryerrors.NewError(op, ferryerrors.KindAuthorization, err).
			WithMessage("destination rejected credentials")
	case errors.Is(err, fs.ErrPermission):
		return ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, err).
			WithMessage("destination rejected path")
	case errors.Is(err, fs.ErrNotExist):
		return ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, err).
			WithMessage("destination path does not exist")
	default:
		return ferryerrors.NewError(op, ferryerrors.KindTransientTransport, err)
	}
}
