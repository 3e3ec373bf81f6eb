package group

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const fetchMethod = "/ising.group.v1.Group/Fetch"

const (
	// DefaultMaxPayload bounds a broadcast payload when GRPCConfig leaves
	// MaxPayload at zero.
	DefaultMaxPayload = 64 << 20
	// DefaultTimeout bounds one broadcast when GRPCConfig leaves Timeout at
	// zero.
	DefaultTimeout = 2 * time.Minute
)

// GRPCConfig configures one rank of a multi-process group. Rank 0 listens on
// Addr and serves broadcasts; every other rank dials Addr.
type GRPCConfig struct {
	Rank   int
	Size   int
	Addr   string
	Logger *slog.Logger
	// MaxPayload is the largest buffer Broadcast accepts, in bytes.
	MaxPayload int
	// Timeout bounds a whole broadcast on every rank: the root waiting for
	// its peers, and a peer waiting for the root.
	Timeout time.Duration
}

// GRPC is a group member that talks to the other processes over gRPC.
// Only rank 0 may act as broadcast root.
type GRPC struct {
	rank, size int
	maxPayload int
	timeout    time.Duration
	log        *slog.Logger

	// rank 0
	lis    net.Listener
	srv    *grpc.Server
	mu     sync.Mutex
	pubs   map[uint32]*publication
	closed bool

	// other ranks
	conn *grpc.ClientConn

	round uint32
}

// publication is the root's payload for one broadcast round. ready closes
// when the payload is set or the round failed; done closes when every peer
// has it or the round failed. err is only written before those closes.
type publication struct {
	data      []byte
	err       error
	ready     chan struct{}
	published bool
	delivered map[uint32]bool
	done      chan struct{}
	finished  bool
}

// fail aborts the round for the root and for every parked fetch. Callers
// hold the group mutex.
func (p *publication) fail(err error) {
	if p.err == nil && !p.finished {
		p.err = err
	}
	if !p.published {
		p.published = true
		close(p.ready)
	}
	if !p.finished {
		p.finished = true
		close(p.done)
	}
}

type fetchServer interface {
	Fetch(ctx context.Context, req *frame) (*frame, error)
}

var groupServiceDesc = grpc.ServiceDesc{
	ServiceName: "ising.group.v1.Group",
	HandlerType: (*fetchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: fetchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ising/group/v1",
}

func fetchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(frame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(fetchServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fetchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(fetchServer).Fetch(ctx, req.(*frame))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPC joins a process group. Rank 0 starts listening immediately; other
// ranks connect lazily and wait for the root during Broadcast.
func NewGRPC(cfg GRPCConfig) (*GRPC, error) {
	if cfg.Size <= 0 || cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrSize, cfg.Rank, cfg.Size)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	g := &GRPC{
		rank:       cfg.Rank,
		size:       cfg.Size,
		maxPayload: cfg.MaxPayload,
		timeout:    cfg.Timeout,
		log:        logger.With(slog.Int("rank", cfg.Rank), slog.Int("size", cfg.Size)),
		pubs:       make(map[uint32]*publication),
	}
	maxMsg := frameHeader + cfg.MaxPayload
	if cfg.Size == 1 {
		return g, nil
	}

	if cfg.Rank == 0 {
		lis, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("group: listen on %s: %w", cfg.Addr, err)
		}
		g.lis = lis
		g.srv = grpc.NewServer(
			grpc.ForceServerCodec(frameCodec{}),
			grpc.MaxSendMsgSize(maxMsg),
			grpc.MaxRecvMsgSize(maxMsg),
		)
		g.srv.RegisterService(&groupServiceDesc, g)
		go func() {
			if err := g.srv.Serve(lis); err != nil {
				g.log.Error("group server stopped", slog.String("error", err.Error()))
			}
		}()
		g.log.Info("group root listening", slog.String("addr", lis.Addr().String()))
		return g, nil
	}

	conn, err := grpc.NewClient(cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(frameCodec{}),
			grpc.MaxCallRecvMsgSize(maxMsg),
			grpc.MaxCallSendMsgSize(maxMsg),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("group: dial %s: %w", cfg.Addr, err)
	}
	g.conn = conn
	return g, nil
}

// Rank returns this member's rank.
func (g *GRPC) Rank() int { return g.rank }

// Size returns the number of ranks in the group.
func (g *GRPC) Size() int { return g.size }

// Addr returns the root's listen address, or "" on other ranks.
func (g *GRPC) Addr() string {
	if g.lis == nil {
		return ""
	}
	return g.lis.Addr().String()
}

// Broadcast distributes root's buf to every rank. The root returns once all
// other ranks have received the payload. Every rank gives up after the
// configured timeout.
func (g *GRPC) Broadcast(ctx context.Context, buf []byte, root int) error {
	if root != 0 {
		return fmt.Errorf("%w: gRPC groups broadcast from rank 0 only, got %d", ErrRoot, root)
	}
	if len(buf) > g.maxPayload {
		return fmt.Errorf("%w: %d bytes exceed the %d byte limit", ErrLength, len(buf), g.maxPayload)
	}
	round := g.round
	g.round++
	if g.size == 1 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if g.rank == 0 {
		return g.publish(ctx, round, buf)
	}

	resp := new(frame)
	req := &frame{Rank: uint32(g.rank), Round: round}
	if err := g.conn.Invoke(ctx, fetchMethod, req, resp, grpc.WaitForReady(true)); err != nil {
		return fmt.Errorf("group: rank %d fetch round %d: %w", g.rank, round, err)
	}
	if len(resp.Payload) != len(buf) {
		return fmt.Errorf("%w: root sent %d bytes, rank %d expects %d", ErrLength, len(resp.Payload), g.rank, len(buf))
	}
	copy(buf, resp.Payload)
	return nil
}

func (g *GRPC) publish(ctx context.Context, round uint32, buf []byte) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	p := g.publicationLocked(round)
	p.data = append([]byte(nil), buf...)
	p.published = true
	close(p.ready)
	g.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		g.mu.Lock()
		p.fail(fmt.Errorf("group: waiting for %d peers: %w", g.size-1, ctx.Err()))
		g.mu.Unlock()
	}
	g.mu.Lock()
	err := p.err
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.log.Debug("broadcast delivered", slog.Int("round", int(round)), slog.Int("bytes", len(buf)))
	return nil
}

func (g *GRPC) publicationLocked(round uint32) *publication {
	p, ok := g.pubs[round]
	if !ok {
		p = &publication{
			ready:     make(chan struct{}),
			delivered: make(map[uint32]bool),
			done:      make(chan struct{}),
		}
		g.pubs[round] = p
	}
	return p
}

// Fetch serves a peer's request for the payload of a round, waiting for the
// root to publish it if necessary.
func (g *GRPC) Fetch(ctx context.Context, req *frame) (*frame, error) {
	if req.Rank == 0 || int(req.Rank) >= g.size {
		return nil, status.Errorf(codes.InvalidArgument, "group: peer rank %d of %d", req.Rank, g.size)
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, status.Error(codes.Unavailable, ErrClosed.Error())
	}
	p := g.publicationLocked(req.Round)
	g.mu.Unlock()

	select {
	case <-p.ready:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if p.err != nil {
		return nil, status.Errorf(codes.Aborted, "group: round %d: %v", req.Round, p.err)
	}
	if !p.delivered[req.Rank] {
		p.delivered[req.Rank] = true
		if len(p.delivered) == g.size-1 && !p.finished {
			p.finished = true
			close(p.done)
		}
	}
	return &frame{Rank: 0, Round: req.Round, Payload: p.data}, nil
}

// Close leaves the group. On rank 0 any unfinished round fails, which
// releases both a waiting Broadcast and every parked peer fetch, and the
// server stops without waiting for them.
func (g *GRPC) Close() error {
	g.mu.Lock()
	g.closed = true
	pending := false
	for _, p := range g.pubs {
		if !p.finished {
			pending = true
			p.fail(ErrClosed)
		}
	}
	g.mu.Unlock()
	if g.srv != nil {
		if pending {
			g.srv.Stop()
		} else {
			g.srv.GracefulStop()
		}
	}
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}
