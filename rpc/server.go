package rpc

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spooky-finn/coinex-orderbook-sync/usecase"
)

var logger = logrus.WithField("component", "rpc")

const getOrderBookSnapshotMethod = "/coinexbook.OrderBookService/GetOrderBookSnapshot"

// OrderBookServiceServer is the server API of coinexbook.OrderBookService.
// Messages are plain structpb.Struct values:
//
//	request  {market: "BTC_USDT", max_depth: 20}
//	response {market, source, checksum, checksum_valid, bids: [[p, s]], asks: [[p, s]]}
type OrderBookServiceServer interface {
	GetOrderBookSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var OrderBookService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "coinexbook.OrderBookService",
	HandlerType: (*OrderBookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrderBookSnapshot",
			Handler:    getOrderBookSnapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coinexbook/orderbook.proto",
}

func getOrderBookSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).GetOrderBookSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getOrderBookSnapshotMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderBookServiceServer).GetOrderBookSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type OrderBookServiceClient interface {
	GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type orderBookServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderBookServiceClient(cc grpc.ClientConnInterface) OrderBookServiceClient {
	return &orderBookServiceClient{cc}
}

func (c *orderBookServiceClient) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getOrderBookSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type server struct {
	orderbookSnapshotUseCase *usecase.OrderBookSnapshotUseCase
	validationService        *ValidationService
}

func NewServer(snapshotUseCase *usecase.OrderBookSnapshotUseCase, conf *ValidationServiceConfig) *server {
	return &server{
		orderbookSnapshotUseCase: snapshotUseCase,
		validationService:        NewValidationService(conf),
	}
}

// Serve registers the service on a new grpc.Server and serves lis until ctx is done.
func (s *server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	grpcServer.RegisterService(&OrderBookService_ServiceDesc, s)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Infof("grpc server listening at %v", lis.Addr())
	return grpcServer.Serve(lis)
}

func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		logger.WithError(err).Warnf("%s failed", info.FullMethod)
	}
	return resp, err
}
