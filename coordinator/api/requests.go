package api

import "github.com/absmach/flock/pkg/api"

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return api.ErrInvalidQueryParams
	}

	return nil
}

type statusReq struct{}

type historyReq struct{}
