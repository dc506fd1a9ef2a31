package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The storefront service carries its payloads as google.protobuf.Struct
// with the same field names as the HTTP JSON API:
//
//	service Storefront {
//	  rpc PlaceOrder(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc ListProducts(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
const (
	ServiceName            = "storefront.v1.Storefront"
	placeOrderFullMethod   = "/" + ServiceName + "/PlaceOrder"
	listProductsFullMethod = "/" + ServiceName + "/ListProducts"
)

type StorefrontServer interface {
	PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListProducts(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&storefrontServiceDesc, srv)
}

var storefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "ListProducts", Handler: listProductsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.proto",
}

func placeOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: placeOrderFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorefrontServer).PlaceOrder(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listProductsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).ListProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listProductsFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorefrontServer).ListProducts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
