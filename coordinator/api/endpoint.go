package api

import (
	"context"
	"errors"

	"github.com/absmach/flock/coordinator"
	pkgerrors "github.com/absmach/flock/pkg/errors"
	"github.com/go-kit/kit/endpoint"
)

func getStatusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if _, ok := request.(statusReq); !ok {
			return statusResponse{}, pkgerrors.ErrInvalidData
		}

		status, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{
			Status: status,
		}, nil
	}
}

func getHistoryEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if _, ok := request.(historyReq); !ok {
			return historyResponse{}, pkgerrors.ErrInvalidData
		}

		history, err := svc.History(ctx)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{
			History: history,
		}, nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listClientsResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return listClientsResponse{}, errors.Join(pkgerrors.ErrInvalidData, err)
		}

		clients, err := svc.ListClients(ctx, req.offset, req.limit)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{
			ClientPage: clients,
		}, nil
	}
}
