package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spooky-finn/coinex-orderbook-sync/domain"
)

func (s *server) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	market := fields["market"].GetStringValue()
	marketSymbol, err := domain.NewMarketSymbolFromString(market)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid market symbol %q. Correct market symbol should use _ as a separator", market)
	}

	if !s.validationService.IsSupportedMarket(marketSymbol) {
		return nil, status.Errorf(codes.NotFound, "market %s is not supported", market)
	}

	maxDepth := int(fields["max_depth"].GetNumberValue())
	if maxDepth < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "max_depth must not be negative")
	}

	snapshot, err := s.orderbookSnapshotUseCase.GetOrderBookSnapshot(ctx, marketSymbol, maxDepth)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Errorf(codes.Unavailable, "%v", err)
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"market":         snapshot.Market,
		"source":         string(snapshot.Source),
		"checksum":       snapshot.Checksum,
		"checksum_valid": snapshot.ChecksumValid,
		"updated_at":     snapshot.LastUpdateTime,
		"bids":           levelsToList(snapshot.Bids),
		"asks":           levelsToList(snapshot.Asks),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}

	return out, nil
}

func levelsToList(levels [][]string) []interface{} {
	list := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		pair := make([]interface{}, 0, len(level))
		for _, v := range level {
			pair = append(pair, v)
		}
		list = append(list, pair)
	}
	return list
}
