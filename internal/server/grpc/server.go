// Package grpc serves the allow-list administration API.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RecordAdmin is the part of allowlist.Service exposed to operators.
type RecordAdmin interface {
	ListRecent(ctx context.Context, limit int) ([]allowlist.Record, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type GRPCServer struct {
	address   string
	records   RecordAdmin
	logger    logging.Logger
	jwtSecret []byte
}

var _ AdminServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, records RecordAdmin, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		records:   records,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	RegisterAdminServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

func (s *GRPCServer) ListRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := int(in.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	recs, err := s.records.ListRecent(ctx, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(recs))
	for _, r := range recs {
		items = append(items, recordFields(r))
	}
	out, err := structpb.NewStruct(map[string]any{"records": items})
	if err != nil {
		s.logger.Error(ctx, "encode records", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) SetActive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	activeVal, ok := in.GetFields()["active"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "active is required")
	}
	active := activeVal.GetBoolValue()

	if err := s.records.SetActive(ctx, id, active); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "record activation changed", "record_id", id, "active", active, "operator", operatorFrom(ctx))
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "record deleted", "record_id", id, "operator", operatorFrom(ctx))
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return status.Error(codes.NotFound, "record not found")
	}
	return status.Error(codes.Internal, "internal error")
}

func recordFields(r allowlist.Record) map[string]any {
	return map[string]any{
		"id":                          r.ID,
		allowlist.FieldEmail:          r.Email,
		allowlist.FieldName:           r.Name,
		allowlist.FieldExternalUserID: r.ExternalUserID,
		allowlist.FieldDeviceID:       r.DeviceID,
		allowlist.FieldIsActive:       r.IsActive,
		allowlist.FieldAddedBy:        r.AddedBy,
		allowlist.FieldCreatedAt:      formatTime(r.CreatedAt),
		allowlist.FieldLastLoginAt:    formatTime(r.LastLoginAt),
		allowlist.FieldAddedAt:        formatTime(r.AddedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
