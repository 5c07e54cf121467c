package sqlclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/zeebo/blake3"

	"github.com/tuannm99/novaproto/internal/record"
	"github.com/tuannm99/novaproto/pkg/typedesc"
	"github.com/tuannm99/novaproto/server/novasqlwire"
)

const DefaultCacheSize = 128

var (
	ErrNilClient          = errors.New("sqlclient: nil client")
	ErrProtocol           = errors.New("sqlclient: protocol error")
	ErrDescriptorMismatch = errors.New("sqlclient: descriptor stream does not match its id")
)

// ServerError is a statement error reported by the server. The connection
// stays usable after one.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// Result is a decoded response.
type Result struct {
	Columns []string
	Rows    [][]any

	// Type and Descriptors are nil for statements without a result set.
	Type         *typedesc.SetType
	Descriptors  []typedesc.Descriptor
	DescriptorID typedesc.DescriptorSetID
	// Cached reports that the descriptors came from the client cache
	// instead of being decoded from the wire.
	Cached bool

	AffectedRows int64
	Generation   uint64
}

type described struct {
	descs []typedesc.Descriptor
	types []typedesc.Type
}

type Option func(*Client)

func WithCacheSize(n int) Option { return func(c *Client) { c.cacheSize = n } }

func WithMaxFrameSize(n int) Option { return func(c *Client) { c.maxFrame = n } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// Client is a simple synchronous client.
// It locks send/recv so you can call Exec concurrently but they'll serialize.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration

	codec      novasqlwire.Codec
	maxFrame   int
	cacheSize  int
	cache      *lru.Cache
	generation uint64
	log        *slog.Logger

	// broken is set once the stream position is unknown; every later call
	// fails with it.
	broken error
}

func Dial(addr string, timeout time.Duration, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), addr, timeout, opts...)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration, opts ...Option) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	c, err := NewClient(conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return c, nil
}

// NewClient runs the handshake over an established connection.
func NewClient(conn net.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		conn:      conn,
		r:         bufio.NewReader(conn),
		w:         bufio.NewWriter(conn),
		maxFrame:  novasqlwire.MaxFrameSize,
		cacheSize: DefaultCacheSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := lru.New(c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sqlclient: descriptor cache: %w", err)
	}
	c.cache = cache

	if err := c.handshake(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	hello := novasqlwire.Hello{Version: novasqlwire.ProtocolVersion}
	if err := novasqlwire.WriteFrame(c.w, novasqlwire.JSONCodec{}, hello, c.maxFrame); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	var reply novasqlwire.Hello
	if err := novasqlwire.ReadFrame(c.r, novasqlwire.JSONCodec{}, &reply, c.maxFrame); err != nil {
		return fmt.Errorf("sqlclient: handshake: %w", err)
	}
	if reply.Version != novasqlwire.ProtocolVersion {
		return fmt.Errorf("%w: server speaks protocol %d, want %d", ErrProtocol, reply.Version, novasqlwire.ProtocolVersion)
	}
	codec, err := novasqlwire.CodecByName(reply.Codec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	c.codec = codec
	c.generation = reply.Generation
	return nil
}

// SetRWTimeout sets a per-Exec read/write deadline.
// Useful to avoid hanging forever if server dies.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

// Generation is the last catalog generation the server reported.
func (c *Client) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// CachedDescriptors returns the number of descriptor sets in the cache.
func (c *Client) CachedDescriptors() int { return c.cache.Len() }

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Exec(sql string) (*Result, error) {
	return c.ExecContext(context.Background(), sql)
}

func (c *Client) ExecContext(ctx context.Context, sql string) (*Result, error) {
	if c == nil || c.conn == nil {
		return nil, ErrNilClient
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, c.broken
	}

	// Apply deadline if configured or context has deadline.
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	req := novasqlwire.ExecuteRequest{ID: reqID, SQL: sql}
	if err := novasqlwire.WriteFrame(c.w, c.codec, req, c.maxFrame); err != nil {
		return nil, c.fail(err)
	}
	if err := c.w.Flush(); err != nil {
		return nil, c.fail(err)
	}

	var resp novasqlwire.ExecuteResponse
	if err := novasqlwire.ReadFrame(c.r, c.codec, &resp, c.maxFrame); err != nil {
		return nil, c.fail(err)
	}
	if resp.ID != reqID {
		return nil, c.fail(fmt.Errorf("%w: response id mismatch: got=%d want=%d", ErrProtocol, resp.ID, reqID))
	}
	if resp.Error != "" {
		return nil, &ServerError{Message: resp.Error}
	}

	c.observeGeneration(resp.Generation)

	res := &Result{
		Columns:      resp.Columns,
		AffectedRows: resp.AffectedRows,
		Generation:   resp.Generation,
	}
	if resp.DescriptorLen == 0 {
		if resp.RowCount != 0 {
			return nil, c.fail(fmt.Errorf("%w: %d rows without a descriptor", ErrProtocol, resp.RowCount))
		}
		return res, nil
	}

	shape, err := c.readDescriptors(resp, res)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.readRows(resp.RowCount, shape, res); err != nil {
		return nil, err
	}
	return res, nil
}

// observeGeneration drops every cached descriptor set once the schema has
// changed on the server.
func (c *Client) observeGeneration(gen uint64) {
	if gen == c.generation {
		return
	}
	if n := c.cache.Len(); n > 0 {
		c.log.Debug("schema changed, purging descriptor cache", "from", c.generation, "to", gen, "entries", n)
	}
	c.cache.Purge()
	c.generation = gen
}

// readDescriptors consumes the descriptor frame. A known id skips decoding;
// otherwise the stream is decoded as it arrives while being hashed, and the
// hash must match the id the server announced.
func (c *Client) readDescriptors(resp novasqlwire.ExecuteResponse, res *Result) (*typedesc.ShapeType, error) {
	id, err := typedesc.ParseSetID(resp.DescriptorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	n, err := novasqlwire.ReadFrameHeader(c.r, c.maxFrame)
	if err != nil {
		return nil, err
	}
	if int(n) != resp.DescriptorLen {
		return nil, fmt.Errorf("%w: descriptor frame is %d bytes, header says %d", ErrProtocol, n, resp.DescriptorLen)
	}

	var entry *described
	if v, ok := c.cache.Get(id); ok {
		entry = v.(*described)
		if len(entry.descs) != resp.DescriptorCount {
			return nil, fmt.Errorf("%w: cached set %s has %d descriptors, header says %d",
				ErrProtocol, id, len(entry.descs), resp.DescriptorCount)
		}
		if _, err := io.CopyN(io.Discard, c.r, int64(n)); err != nil {
			return nil, err
		}
		res.Cached = true
	} else {
		h := blake3.New()
		descs, err := typedesc.DecodeFrom(io.TeeReader(c.r, h), int64(n), resp.DescriptorCount)
		if err != nil {
			return nil, err
		}
		var got typedesc.DescriptorSetID
		copy(got[:], h.Sum(nil))
		if got != id {
			return nil, fmt.Errorf("%w: announced %s, received %s", ErrDescriptorMismatch, id, got)
		}
		types, err := typedesc.ResolveAll(descs)
		if err != nil {
			return nil, err
		}
		entry = &described{descs: descs, types: types}
		c.cache.Add(id, entry)
	}

	if int(resp.Root) >= len(entry.types) {
		return nil, fmt.Errorf("%w: root %d outside %d descriptors", ErrProtocol, resp.Root, len(entry.types))
	}
	set, ok := entry.types[resp.Root].(*typedesc.SetType)
	if !ok {
		return nil, fmt.Errorf("%w: root is %s, want set", ErrProtocol, entry.types[resp.Root].Kind())
	}
	shape, ok := set.Element.(*typedesc.ShapeType)
	if !ok {
		return nil, fmt.Errorf("%w: set element is %s, want shape", ErrProtocol, set.Element.Kind())
	}

	res.Type = set
	res.Descriptors = entry.descs
	res.DescriptorID = id
	return shape, nil
}

// readRows reads every row frame even after a decode error so the
// connection stays aligned on the next response.
func (c *Client) readRows(count int, shape *typedesc.ShapeType, res *Result) error {
	var decodeErr error
	res.Rows = make([][]any, 0, count)
	for i := 0; i < count; i++ {
		b, err := novasqlwire.ReadRawFrame(c.r, c.maxFrame)
		if err != nil {
			return c.fail(err)
		}
		if decodeErr != nil {
			continue
		}
		row, err := record.DecodeRow(shape, b)
		if err != nil {
			decodeErr = fmt.Errorf("sqlclient: row %d: %w", i, err)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return decodeErr
}

func (c *Client) fail(err error) error {
	c.broken = fmt.Errorf("sqlclient: connection unusable: %w", err)
	_ = c.conn.Close()
	return err
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
