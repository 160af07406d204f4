package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
)

// AdminClient calls AllowListAdmin. A non-empty token is attached to every
// call as access_token metadata.
type AdminClient struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewAdminClient(cc grpc.ClientConnInterface, token string) *AdminClient {
	return &AdminClient{cc: cc, token: token}
}

func (c *AdminClient) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, c.token)
}

func (c *AdminClient) Ping(ctx context.Context) (string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(c.withToken(ctx), MethodPing, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetFields()["status"].GetStringValue(), nil
}

func (c *AdminClient) ListRecords(ctx context.Context, limit int) ([]allowlist.Record, error) {
	in, err := structpb.NewStruct(map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(c.withToken(ctx), MethodListRecords, in, out); err != nil {
		return nil, err
	}

	items := out.GetFields()["records"].GetListValue().GetValues()
	recs := make([]allowlist.Record, 0, len(items))
	for _, item := range items {
		fields := item.GetStructValue().AsMap()
		id, _ := fields["id"].(string)
		recs = append(recs, allowlist.RecordFromDocument(id, docstore.Document(fields)))
	}
	return recs, nil
}

func (c *AdminClient) SetActive(ctx context.Context, id string, active bool) error {
	in, err := structpb.NewStruct(map[string]any{"id": id, "active": active})
	if err != nil {
		return err
	}
	return c.cc.Invoke(c.withToken(ctx), MethodSetActive, in, new(emptypb.Empty))
}

func (c *AdminClient) DeleteRecord(ctx context.Context, id string) error {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return err
	}
	return c.cc.Invoke(c.withToken(ctx), MethodDeleteRecord, in, new(emptypb.Empty))
}
