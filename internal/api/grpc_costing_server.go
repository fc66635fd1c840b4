package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"fabrica/server/internal/services"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const computeBreakdownMethod = "/fabrica.costing.v1.CostingService/ComputeBreakdown"

// CostingServiceServer gRPC сервис расчета себестоимости. Сообщения - google.protobuf.Struct
// с теми же JSON полями, что и HTTP API
type CostingServiceServer interface {
	ComputeBreakdown(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// CostingServiceDesc описание сервиса fabrica.costing.v1.CostingService
var CostingServiceDesc = grpc.ServiceDesc{
	ServiceName: "fabrica.costing.v1.CostingService",
	HandlerType: (*CostingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ComputeBreakdown",
			Handler:    computeBreakdownHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fabrica/costing/v1/costing.proto",
}

func computeBreakdownHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CostingServiceServer).ComputeBreakdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeBreakdownMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CostingServiceServer).ComputeBreakdown(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterCostingServiceServer регистрирует сервис на gRPC сервере
func RegisterCostingServiceServer(s grpc.ServiceRegistrar, srv CostingServiceServer) {
	s.RegisterService(&CostingServiceDesc, srv)
}

// computeBreakdownRequest сохраненная позиция (item_id) или позиция целиком (item)
type computeBreakdownRequest struct {
	TenantID string                 `json:"tenant_id"`
	ItemID   string                 `json:"item_id"`
	Item     *models.SimulationItem `json:"item"`
}

// CostingGRPCServer реализация CostingServiceServer поверх SimulationService
type CostingGRPCServer struct {
	simulations *services.SimulationService
}

func NewCostingGRPCServer(simulations *services.SimulationService) *CostingGRPCServer {
	return &CostingGRPCServer{simulations: simulations}
}

func (s *CostingGRPCServer) ComputeBreakdown(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "некорректный запрос: %v", err)
	}
	var in computeBreakdownRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "некорректный запрос: %v", err)
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, status.Error(codes.InvalidArgument, "не указан tenant_id")
	}

	var breakdown models.CostBreakdown
	switch {
	case in.ItemID != "":
		breakdown, err = s.simulations.BreakdownForItem(ctx, in.TenantID, in.ItemID)
	case in.Item != nil:
		if strings.TrimSpace(in.Item.Family) == "" {
			return nil, status.Error(codes.InvalidArgument, "не указана familia")
		}
		breakdown, err = s.simulations.Breakdown(ctx, in.TenantID, *in.Item)
	default:
		return nil, status.Error(codes.InvalidArgument, "нужен item_id или item")
	}
	if errors.Is(err, services.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "позиция %s не найдена", in.ItemID)
	}
	if err != nil {
		logger.FromContext(ctx).Error("❌ gRPC: ошибка расчета себестоимости", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "ошибка расчета: %v", err)
	}

	return toStruct(breakdown)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "ошибка сериализации: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "ошибка сериализации: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "ошибка сериализации: %v", err)
	}
	return out, nil
}

// LoggingUnaryInterceptor логирует gRPC вызовы
func LoggingUnaryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(logger.WithContext(ctx, log), req)
		log.Info("gRPC Request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}
