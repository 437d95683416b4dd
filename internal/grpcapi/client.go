package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/wire"
)

// Client calls portunus.controller.v1.Commands over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Execute(ctx context.Context, req types.CommandRequest, opts ...grpc.CallOption) (types.CommandResponse, error) {
	in, err := wire.CommandRequestToStruct(req)
	if err != nil {
		return types.CommandResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, executeMethod, in, out, opts...); err != nil {
		return types.CommandResponse{}, err
	}
	return wire.CommandResponseFromStruct(out)
}
