package group

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFrameCodec(t *testing.T) {
	c := frameCodec{}
	data, err := c.Marshal(&frame{Rank: 3, Round: 7, Payload: []byte{1, 255, 0}})
	require.NoError(t, err)
	assert.Len(t, data, frameHeader+3)

	var f frame
	require.NoError(t, c.Unmarshal(data, &f))
	assert.Equal(t, uint32(3), f.Rank)
	assert.Equal(t, uint32(7), f.Round)
	assert.Equal(t, []byte{1, 255, 0}, f.Payload)

	require.Error(t, c.Unmarshal([]byte{1, 2}, &f))
	_, err = c.Marshal("nope")
	require.Error(t, err)
}

func TestGRPCBroadcast(t *testing.T) {
	const size = 4
	root, err := NewGRPC(GRPCConfig{Rank: 0, Size: size, Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer root.Close()

	members := []*GRPC{root}
	for rank := 1; rank < size; rank++ {
		m, err := NewGRPC(GRPCConfig{Rank: rank, Size: size, Addr: root.Addr()})
		require.NoError(t, err)
		defer m.Close()
		members = append(members, m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := []byte("spins spins spins")
	bufs := make([][]byte, size)
	bufs[0] = append([]byte(nil), payload...)
	for i := 1; i < size; i++ {
		bufs[i] = make([]byte, len(payload))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range members {
		g.Go(func() error { return m.Broadcast(gctx, bufs[i], 0) })
	}
	require.NoError(t, g.Wait())
	for i := range bufs {
		assert.Equal(t, payload, bufs[i], "rank %d", i)
	}
}

func TestGRPCConfigValidation(t *testing.T) {
	_, err := NewGRPC(GRPCConfig{Rank: 2, Size: 2})
	require.ErrorIs(t, err, ErrSize)

	solo, err := NewGRPC(GRPCConfig{Rank: 0, Size: 1})
	require.NoError(t, err)
	require.NoError(t, solo.Broadcast(context.Background(), []byte{1}, 0))
	require.ErrorIs(t, solo.Broadcast(context.Background(), []byte{1}, 1), ErrRoot)
	require.NoError(t, solo.Close())
}

func newPair(t *testing.T, cfg GRPCConfig) (root, peer *GRPC) {
	t.Helper()
	cfg.Rank, cfg.Size, cfg.Addr = 0, 2, "127.0.0.1:0"
	root, err := NewGRPC(cfg)
	require.NoError(t, err)
	cfg.Rank, cfg.Addr = 1, root.Addr()
	peer, err = NewGRPC(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = peer.Close()
		_ = root.Close()
	})
	return root, peer
}

func TestGRPCBroadcastLargeLattice(t *testing.T) {
	root, peer := newPair(t, GRPCConfig{})

	const cells = 2048 * 2048
	src := make([]byte, cells)
	for i := range src {
		src[i] = byte(i % 251)
	}
	dst := make([]byte, cells)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return root.Broadcast(gctx, src, 0) })
	g.Go(func() error { return peer.Broadcast(gctx, dst, 0) })
	require.NoError(t, g.Wait())
	assert.Equal(t, src, dst)
}

func TestGRPCBroadcastRejectsOversizedPayload(t *testing.T) {
	solo, err := NewGRPC(GRPCConfig{Rank: 0, Size: 1, MaxPayload: 4})
	require.NoError(t, err)
	defer solo.Close()
	require.ErrorIs(t, solo.Broadcast(context.Background(), make([]byte, 5), 0), ErrLength)
}

func TestGRPCRootCloseReleasesParkedPeer(t *testing.T) {
	root, peer := newPair(t, GRPCConfig{})

	peerErr := make(chan error, 1)
	go func() { peerErr <- peer.Broadcast(context.Background(), make([]byte, 16), 0) }()

	// Wait until the peer's fetch is parked on the root.
	require.Eventually(t, func() bool {
		root.mu.Lock()
		defer root.mu.Unlock()
		return len(root.pubs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- root.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("root Close blocked on a parked fetch")
	}
	select {
	case err := <-peerErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("peer still waiting after the root closed")
	}
}

func TestGRPCRootGivesUpOnMissingPeer(t *testing.T) {
	root, _ := newPair(t, GRPCConfig{Timeout: 200 * time.Millisecond})

	start := time.Now()
	err := root.Broadcast(context.Background(), []byte{1, 2, 3}, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	closed := make(chan struct{})
	go func() {
		_ = root.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("root Close blocked after a failed round")
	}
}

func TestGRPCPeerGivesUpWithoutRoot(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	peer, err := NewGRPC(GRPCConfig{Rank: 1, Size: 2, Addr: addr, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer peer.Close()
	require.Error(t, peer.Broadcast(context.Background(), make([]byte, 4), 0))
}
