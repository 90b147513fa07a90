package api

import (
	"net/http"

	"github.com/absmach/flock/coordinator"
	"github.com/absmach/flock/pkg/api"
)

var (
	_ api.Response = (*statusResponse)(nil)
	_ api.Response = (*historyResponse)(nil)
	_ api.Response = (*listClientsResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type historyResponse struct {
	coordinator.History
}

func (h historyResponse) Code() int {
	return http.StatusOK
}

func (h historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (h historyResponse) Empty() bool {
	return false
}

type listClientsResponse struct {
	coordinator.ClientPage
}

func (l listClientsResponse) Code() int {
	return http.StatusOK
}

func (l listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listClientsResponse) Empty() bool {
	return false
}
