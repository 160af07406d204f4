package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The admin API is small enough to be described with well-known protobuf
// types, so its service descriptor is written out here instead of generated.
const (
	ServiceName = "tradegate.admin.AllowListAdmin"

	MethodPing         = "/" + ServiceName + "/Ping"
	MethodListRecords  = "/" + ServiceName + "/ListRecords"
	MethodSetActive    = "/" + ServiceName + "/SetActive"
	MethodDeleteRecord = "/" + ServiceName + "/DeleteRecord"
)

// AdminServer is the server side of AllowListAdmin.
//
//	Ping         Empty                        -> {status}
//	ListRecords  {limit}                      -> {records: [...]}
//	SetActive    {id, active}                 -> Empty
//	DeleteRecord {id}                         -> Empty
type AdminServer interface {
	Ping(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SetActive(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	DeleteRecord(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

var AllowListAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler: unaryHandler(MethodPing, newEmpty, func(s AdminServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.Ping(ctx, in)
			}),
		},
		{
			MethodName: "ListRecords",
			Handler: unaryHandler(MethodListRecords, newStruct, func(s AdminServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.ListRecords(ctx, in)
			}),
		},
		{
			MethodName: "SetActive",
			Handler: unaryHandler(MethodSetActive, newStruct, func(s AdminServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.SetActive(ctx, in)
			}),
		},
		{
			MethodName: "DeleteRecord",
			Handler: unaryHandler(MethodDeleteRecord, newStruct, func(s AdminServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.DeleteRecord(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterAdminServer(r grpc.ServiceRegistrar, srv AdminServer) {
	r.RegisterService(&AllowListAdminServiceDesc, srv)
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func unaryHandler[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(AdminServer, context.Context, Req) (proto.Message, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(AdminServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(Req))
		})
	}
}
