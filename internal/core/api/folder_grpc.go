package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "smartfolder.v1.FolderService"

// FolderServiceServer is the gRPC surface of the folder service. Requests and
// responses are google.protobuf.Struct values holding the JSON forms of the
// domain types.
type FolderServiceServer interface {
	EvaluateFolder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	EvaluateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ValidateFolder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetFolderPerformance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv FolderServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FolderServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FolderServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FolderServiceDesc describes smartfolder.v1.FolderService for grpc.Server.
var FolderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FolderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("EvaluateFolder", FolderServiceServer.EvaluateFolder),
		unaryHandler("EvaluateDocument", FolderServiceServer.EvaluateDocument),
		unaryHandler("ValidateFolder", FolderServiceServer.ValidateFolder),
		unaryHandler("GetFolderPerformance", FolderServiceServer.GetFolderPerformance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "smartfolder/v1/folder_service.proto",
}

// RegisterFolderServiceServer registers srv on s.
func RegisterFolderServiceServer(s grpc.ServiceRegistrar, srv FolderServiceServer) {
	s.RegisterService(&FolderServiceDesc, srv)
}

// FolderServiceClient calls smartfolder.v1.FolderService.
type FolderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFolderServiceClient wraps a client connection.
func NewFolderServiceClient(cc grpc.ClientConnInterface) *FolderServiceClient {
	return &FolderServiceClient{cc: cc}
}

func (c *FolderServiceClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FolderServiceClient) EvaluateFolder(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "EvaluateFolder", req, opts...)
}

func (c *FolderServiceClient) EvaluateDocument(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "EvaluateDocument", req, opts...)
}

func (c *FolderServiceClient) ValidateFolder(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ValidateFolder", req, opts...)
}

func (c *FolderServiceClient) GetFolderPerformance(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetFolderPerformance", req, opts...)
}
