package novasqlwire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tuannm99/novaproto/internal/engine"
	"github.com/tuannm99/novaproto/internal/record"
	"github.com/tuannm99/novaproto/internal/sql/executor"
	"github.com/tuannm99/novaproto/pkg/typedesc"
)

type ServerConfig struct {
	Addr         string
	Codec        string
	MaxFrameSize int
}

// Server accepts connections and runs every session against one shared
// Database, so DDL issued on one connection is visible to all of them.
type Server struct {
	cfg   ServerConfig
	codec Codec
	db    *engine.Database
	exec  *executor.Executor
	log   *slog.Logger

	wg sync.WaitGroup
}

func NewServer(cfg ServerConfig, db *engine.Database, logger *slog.Logger) (*Server, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = MaxFrameSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:   cfg,
		codec: codec,
		db:    db,
		exec:  executor.NewExecutor(db),
		log:   logger,
	}, nil
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then closes every open
// session and waits for them to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	s.log.Info("novasql tcp server listening", "addr", ln.Addr().String(), "codec", s.codec.Name())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			s.log.Warn("accept", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

type session struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	enc  *typedesc.Encoder
	log  *slog.Logger
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// No global deadline; you can set per-request deadline if needed.
	_ = conn.SetDeadline(time.Time{})

	sess := &session{
		srv:  s,
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		enc:  typedesc.NewEncoder(),
		log:  s.log.With("remote", conn.RemoteAddr().String()),
	}
	if err := sess.handshake(); err != nil {
		sess.log.Warn("handshake", "err", err)
		return
	}
	sess.log.Debug("session open")

	for {
		var req ExecuteRequest
		if err := ReadFrame(sess.r, s.codec, &req, s.cfg.MaxFrameSize); err != nil {
			// Client closed or bad frame.
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				sess.log.Warn("read request", "err", err)
			}
			return
		}
		if err := sess.execute(ctx, req); err != nil {
			sess.log.Warn("write response", "req_id", req.ID, "err", err)
			return
		}
	}
}

func (sess *session) handshake() error {
	var hello Hello
	if err := ReadFrame(sess.r, JSONCodec{}, &hello, sess.srv.cfg.MaxFrameSize); err != nil {
		return err
	}
	reply := Hello{
		Version:    ProtocolVersion,
		Codec:      sess.srv.codec.Name(),
		Generation: sess.srv.db.Catalog().Generation(),
	}
	if err := WriteFrame(sess.w, JSONCodec{}, reply, sess.srv.cfg.MaxFrameSize); err != nil {
		return err
	}
	if err := sess.w.Flush(); err != nil {
		return err
	}
	if hello.Version != ProtocolVersion {
		return fmt.Errorf("novasqlwire: client speaks protocol %d, want %d", hello.Version, ProtocolVersion)
	}
	return nil
}

// execute runs one request and writes its response. Only transport errors
// are returned; statement errors travel in the response header.
func (sess *session) execute(ctx context.Context, req ExecuteRequest) error {
	start := time.Now()
	maxSize := sess.srv.cfg.MaxFrameSize

	hdr, desc, rows, err := sess.run(ctx, req)
	if err != nil {
		sess.log.Debug("execute failed", "req_id", req.ID, "err", err)
		hdr = ExecuteResponse{ID: req.ID, Error: err.Error()}
		desc, rows = nil, nil
	}

	if err := WriteFrame(sess.w, sess.srv.codec, hdr, maxSize); err != nil {
		return err
	}
	if len(desc) > 0 {
		if err := WriteRawFrame(sess.w, desc, maxSize); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := WriteRawFrame(sess.w, row, maxSize); err != nil {
			return err
		}
	}
	if err := sess.w.Flush(); err != nil {
		return err
	}

	sess.log.Debug("execute",
		"req_id", req.ID,
		"descriptor_id", hdr.DescriptorID,
		"rows", hdr.RowCount,
		"affected", hdr.AffectedRows,
		"elapsed", time.Since(start))
	return nil
}

// run executes the statement and encodes everything the response needs
// before a single byte is written.
func (sess *session) run(ctx context.Context, req ExecuteRequest) (ExecuteResponse, []byte, [][]byte, error) {
	hdr := ExecuteResponse{ID: req.ID}

	res, err := sess.srv.exec.ExecContext(ctx, req.SQL)
	if err != nil {
		return hdr, nil, nil, err
	}
	hdr.Columns = res.Columns
	hdr.AffectedRows = res.AffectedRows
	hdr.Generation = res.Generation
	if res.Type == nil {
		return hdr, nil, nil, nil
	}

	shape, ok := res.Type.Element.(*typedesc.ShapeType)
	if !ok {
		return hdr, nil, nil, fmt.Errorf("novasqlwire: result element is %s, want a shape", res.Type.Element.Kind())
	}
	desc, root, err := sess.enc.Encode(res.Type)
	if err != nil {
		return hdr, nil, nil, err
	}
	if len(desc) > sess.srv.cfg.MaxFrameSize {
		return hdr, nil, nil, fmt.Errorf("%w: descriptor stream is %d bytes", ErrFrameTooLarge, len(desc))
	}

	rows := make([][]byte, 0, len(res.Rows))
	for i, row := range res.Rows {
		b, err := record.EncodeRow(shape, row)
		if err != nil {
			return hdr, nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		if len(b) > sess.srv.cfg.MaxFrameSize {
			return hdr, nil, nil, fmt.Errorf("%w: row %d is %d bytes", ErrFrameTooLarge, i, len(b))
		}
		rows = append(rows, b)
	}

	hdr.DescriptorID = typedesc.SetID(desc).String()
	hdr.DescriptorCount = sess.enc.Count()
	hdr.DescriptorLen = len(desc)
	hdr.Root = uint16(root)
	hdr.RowCount = len(rows)
	return hdr, desc, rows, nil
}
