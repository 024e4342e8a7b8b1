package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

// defaultDialTimeout bounds the FTP control connection handshake.
const defaultDialTimeout = 30 * time.Second

// defaultMaxIdleConns caps idle pooled connections at the widest worker
// fan-out the planner produces.
const defaultMaxIdleConns = 16

// ftpConn is the slice of *ftp.ServerConn the sink uses. Tests substitute
// in-memory connections.
type ftpConn interface {
	Login(user, password string) error
	StorFrom(path string, r io.Reader, offset uint64) error
	MakeDir(path string) error
	Delete(path string) error
	NoOp() error
	Quit() error
}

// ftpDialFunc dials and returns an unauthenticated control connection.
type ftpDialFunc func(ctx context.Context, addr string, explicitTLS bool, tlsConfig *tls.Config) (ftpConn, error)

// FTP writes chunks over FTP, or FTPS when built by NewFTPS. Each concurrent
// WriteAt issues one STOR with a byte offset, on its own pooled control
// connection.
type FTP struct {
	explicitTLS bool
	dialTimeout time.Duration
	tlsConfig   *tls.Config
	maxIdle     int
	dial        ftpDialFunc

	pool  *connPool
	dest  ferrytypes.Destination
	creds ferrytypes.SinkCredentials
}

// FTPOption adjusts an FTP sink.
type FTPOption func(*FTP)

// WithDialTimeout bounds each control connection dial.
func WithDialTimeout(d time.Duration) FTPOption {
	return func(f *FTP) {
		if d > 0 {
			f.dialTimeout = d
		}
	}
}

// WithTLSConfig replaces the TLS configuration used for FTPS handshakes.
func WithTLSConfig(cfg *tls.Config) FTPOption {
	return func(f *FTP) { f.tlsConfig = cfg }
}

// WithMaxIdleConns caps how many idle connections the sink keeps between
// chunk writes.
func WithMaxIdleConns(n int) FTPOption {
	return func(f *FTP) {
		if n > 0 {
			f.maxIdle = n
		}
	}
}

// withFTPDialer replaces the network dialer. Test hook.
func withFTPDialer(dial ftpDialFunc) FTPOption {
	return func(f *FTP) { f.dial = dial }
}

// NewFTP returns a plaintext FTP sink.
func NewFTP(opts ...FTPOption) *FTP {
	f := &FTP{
		dialTimeout: defaultDialTimeout,
		maxIdle:     defaultMaxIdleConns,
		dial:        dialFTP,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFTPS returns an FTP sink that upgrades each control connection with
// explicit TLS before authenticating.
func NewFTPS(opts ...FTPOption) *FTP {
	f := NewFTP(opts...)
	f.explicitTLS = true
	return f
}

var _ Sink = (*FTP)(nil)

// dialFTP is the production dialer.
func dialFTP(ctx context.Context, addr string, explicitTLS bool, tlsConfig *tls.Config) (ftpConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if explicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}
	return ftp.Dial(addr, opts...)
}

// Connect binds the sink to dest and dials one connection up front so
// credential rejections surface before any bytes move.
func (f *FTP) Connect(ctx context.Context, dest ferrytypes.Destination, creds ferrytypes.SinkCredentials) error {
	const op = "sink.ftp.connect"
	if dest.Host == "" {
		return ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("destination host is required")
	}
	if f.pool != nil {
		return ferryerrors.NewError(op, ferryerrors.KindInternal, ferryerrors.ErrInvalidInput).
			WithMessage("sink is already connected")
	}

	f.dest = dest
	f.creds = creds
	f.pool = newConnPool(f.maxIdle, f.connect, func(c ftpConn) bool { return c.NoOp() == nil })

	conn, err := f.pool.get(ctx)
	if err != nil {
		return err
	}
	f.pool.put(conn)
	return nil
}

// connect dials and authenticates one control connection. It is the pool's
// factory.
func (f *FTP) connect(ctx context.Context) (ftpConn, error) {
	const op = "sink.ftp.dial"
	dialCtx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	var tlsConfig *tls.Config
	if f.explicitTLS {
		tlsConfig = f.tlsConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: f.dest.Host, MinVersion: tls.VersionTLS12}
		}
	}

	conn, err := f.dial(dialCtx, f.dest.Addr(), f.explicitTLS, tlsConfig)
	if err != nil {
		return nil, classifyFTPError(op, err).WithDest(f.dest.Addr())
	}
	if err := conn.Login(f.creds.Username, f.creds.Password); err != nil {
		_ = conn.Quit()
		return nil, classifyFTPError(op, err).WithDest(f.dest.Addr())
	}
	return conn, nil
}

// Prepare creates each directory on the way to path and deletes any previous
// file at path. Command-level rejections are ignored since existing
// directories and missing files answer the same way; anything genuinely
// broken resurfaces at the first write.
func (f *FTP) Prepare(ctx context.Context, path string) error {
	const op = "sink.ftp.prepare"
	if f.pool == nil {
		return notConnected(op)
	}

	conn, err := f.pool.get(ctx)
	if err != nil {
		return err
	}
	for _, dir := range parentDirs(path) {
		if err := conn.MakeDir(dir); err != nil {
			if isCommandReply(err) {
				continue
			}
			f.pool.destroy(conn)
			return classifyFTPError(op, err).WithDest(f.dest.Addr())
		}
	}
	if err := conn.Delete(path); err != nil && !isCommandReply(err) {
		f.pool.destroy(conn)
		return classifyFTPError(op, err).WithDest(f.dest.Addr())
	}
	f.pool.put(conn)
	return nil
}

// isCommandReply reports whether err is a server reply rather than a
// transport fault.
func isCommandReply(err error) bool {
	var proto *textproto.Error
	return errors.As(err, &proto)
}

// WriteAt streams the reader into the remote file at the given offset using
// a REST+STOR pair. A failed connection is discarded rather than pooled.
func (f *FTP) WriteAt(ctx context.Context, path string, offset int64, r io.Reader) (int64, error) {
	const op = "sink.ftp.write"
	if f.pool == nil {
		return 0, notConnected(op)
	}

	conn, err := f.pool.get(ctx)
	if err != nil {
		return 0, err
	}

	counter := &countingReader{r: r}
	if err := conn.StorFrom(path, counter, uint64(offset)); err != nil {
		f.pool.destroy(conn)
		return counter.n, classifyFTPError(op, err).WithDest(f.dest.Addr())
	}
	f.pool.put(conn)
	return counter.n, nil
}

// Close quits every pooled connection.
func (f *FTP) Close() error {
	if f.pool != nil {
		f.pool.close()
	}
	return nil
}

// Stats reports connection reuse for the sink's lifetime.
func (f *FTP) Stats() PoolStats {
	if f.pool == nil {
		return PoolStats{}
	}
	return f.pool.snapshot()
}

// classifyFTPError sorts FTP failures into the error taxonomy. Server reply
// codes decide permanence: credential rejections and path rejections never
// heal on retry, while 4xx replies and raw transport faults do.
func classifyFTPError(op string, err error) *ferryerrors.Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ferryerrors.NewError(op, ferryerrors.KindCancelled, err)
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == ftp.StatusNotLoggedIn || proto.Code == 532:
			return ferryerrors.NewError(op, ferryerrors.KindAuthorization, err).
				WithMessage("destination rejected credentials")
		case proto.Code >= 500:
			return ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, err).
				WithMessage("destination rejected path or command")
		default:
			return ferryerrors.NewError(op, ferryerrors.KindTransientTransport, err)
		}
	}
	return ferryerrors.NewError(op, ferryerrors.KindTransientTransport, err)
}

func notConnected(op string) *ferryerrors.Error {
	return ferryerrors.NewError(op, ferryerrors.KindInternal, ferryerrors.ErrNotConnected).
		WithMessage("sink is not connected")
}

// parentDirs lists every directory prefix of path, shortest first.
func parentDirs(path string) []string {
	trimmed := strings.Trim(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return nil
	}
	rooted := strings.HasPrefix(path, "/")
	dirs := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/")
		if rooted {
			dir = "/" + dir
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
