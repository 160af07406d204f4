package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/logging"
	"github.com/dmitrijs2005/tradegate/internal/server/auth"
)

const testSecret = "secret"

type harness struct {
	svc    *allowlist.Service
	admin  *AdminClient
	anon   *AdminClient
	viewer *AdminClient
}

func startServer(t *testing.T) *harness {
	t.Helper()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := allowlist.NewService(docstore.NewMemoryStore(), logging.Nop(), allowlist.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewGRPCServer("", logging.Nop(), svc, testSecret).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	return &harness{
		svc:    svc,
		admin:  NewAdminClient(conn, mustToken(t, auth.RoleAdmin, testSecret, time.Hour)),
		anon:   NewAdminClient(conn, ""),
		viewer: NewAdminClient(conn, mustToken(t, "viewer", testSecret, time.Hour)),
	}
}

func seed(t *testing.T, svc *allowlist.Service, emails ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		v := svc.Authorize(context.Background(), allowlist.Identity{Email: e})
		require.Equal(t, allowlist.Authorized, v.Kind)
		ids = append(ids, v.Record.ID)
	}
	return ids
}

func TestAdmin_PingIsPublic(t *testing.T) {
	h := startServer(t)

	got, err := h.anon.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", got)
}

func TestAdmin_ListRecordsNewestFirst(t *testing.T) {
	h := startServer(t)
	seed(t, h.svc, "first@example.org", "second@example.org", "third@example.org")

	recs, err := h.admin.ListRecords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "third@example.org", recs[0].Email)
	assert.Equal(t, "second@example.org", recs[1].Email)
	assert.True(t, recs[0].IsActive)
	assert.Equal(t, "web_registration", recs[0].AddedBy)
	assert.False(t, recs[0].AddedAt.IsZero())
	assert.NotEmpty(t, recs[0].ID)
}

func TestAdmin_SetActiveAndDelete(t *testing.T) {
	h := startServer(t)
	ids := seed(t, h.svc, "carol@example.org")
	ctx := context.Background()

	require.NoError(t, h.admin.SetActive(ctx, ids[0], false))
	v := h.svc.Authorize(ctx, allowlist.Identity{Email: "carol@example.org"})
	assert.Equal(t, allowlist.InactiveBlocked, v.Kind)

	require.NoError(t, h.admin.SetActive(ctx, ids[0], true))
	v = h.svc.Authorize(ctx, allowlist.Identity{Email: "carol@example.org"})
	assert.Equal(t, allowlist.Authorized, v.Kind)

	require.NoError(t, h.admin.DeleteRecord(ctx, ids[0]))
	recs, err := h.admin.ListRecords(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAdmin_Errors(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	err := h.admin.SetActive(ctx, "missing", false)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = h.admin.SetActive(ctx, "", false)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = h.admin.DeleteRecord(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.anon.ListRecords(ctx, 10)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = h.viewer.DeleteRecord(ctx, "any")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), nil, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), nil, testSecret)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
