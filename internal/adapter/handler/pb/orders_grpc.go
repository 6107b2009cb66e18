package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	OrderService_PlaceOrder_FullMethodName     = "/bookstore.v1.OrderService/PlaceOrder"
	OrderService_GetOrder_FullMethodName       = "/bookstore.v1.OrderService/GetOrder"
	OrderService_ListOrders_FullMethodName     = "/bookstore.v1.OrderService/ListOrders"
	OrderService_SetOrderStatus_FullMethodName = "/bookstore.v1.OrderService/SetOrderStatus"
)

type OrderServiceClient interface {
	PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*Order, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	SetOrderStatus(ctx context.Context, in *SetOrderStatusRequest, opts ...grpc.CallOption) (*Order, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc}
}

func (c *orderServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *orderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	out := new(PlaceOrderResponse)
	if err := c.invoke(ctx, OrderService_PlaceOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	out := new(Order)
	if err := c.invoke(ctx, OrderService_GetOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, OrderService_ListOrders_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) SetOrderStatus(ctx context.Context, in *SetOrderStatusRequest, opts ...grpc.CallOption) (*Order, error) {
	out := new(Order)
	if err := c.invoke(ctx, OrderService_SetOrderStatus_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*Order, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	SetOrderStatus(context.Context, *SetOrderStatusRequest) (*Order, error)
	mustEmbedUnimplementedOrderServiceServer()
}

type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PlaceOrder not implemented")
}

func (UnimplementedOrderServiceServer) GetOrder(context.Context, *GetOrderRequest) (*Order, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedOrderServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedOrderServiceServer) SetOrderStatus(context.Context, *SetOrderStatusRequest) (*Order, error) {
	return nil, status.Error(codes.Unimplemented, "method SetOrderStatus not implemented")
}

func (UnimplementedOrderServiceServer) mustEmbedUnimplementedOrderServiceServer() {}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderService_ServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(OrderServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var OrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bookstore.v1.OrderService",
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PlaceOrder",
			Handler: unaryHandler(OrderService_PlaceOrder_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *PlaceOrderRequest) (any, error) {
					return s.PlaceOrder(ctx, in)
				}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler(OrderService_GetOrder_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *GetOrderRequest) (any, error) {
					return s.GetOrder(ctx, in)
				}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler(OrderService_ListOrders_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *ListOrdersRequest) (any, error) {
					return s.ListOrders(ctx, in)
				}),
		},
		{
			MethodName: "SetOrderStatus",
			Handler: unaryHandler(OrderService_SetOrderStatus_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *SetOrderStatusRequest) (any, error) {
					return s.SetOrderStatus(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookstore/v1/orders.proto",
}
