package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	statusEndpoint  = "/status"
	historyEndpoint = "/history"
	clientsEndpoint = "/clients"
	healthEndpoint  = "/health"
)

type Status struct {
	State     string    `json:"state"`
	Round     uint64    `json:"round"`
	Rounds    uint64    `json:"rounds"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type RoundRecord struct {
	Round            uint64         `json:"round"`
	FitResults       int            `json:"fit_results"`
	FitFailures      int            `json:"fit_failures"`
	EvaluateResults  int            `json:"evaluate_results"`
	EvaluateFailures int            `json:"evaluate_failures"`
	Aggregated       bool           `json:"aggregated"`
	LossDistributed  *float64       `json:"loss_distributed,omitempty"`
	LossCentralized  *float64       `json:"loss_centralized,omitempty"`
	FitMetrics       map[string]any `json:"fit_metrics,omitempty"`
	EvaluateMetrics  map[string]any `json:"evaluate_metrics,omitempty"`
	CentralMetrics   map[string]any `json:"central_metrics,omitempty"`
	Elapsed          time.Duration  `json:"elapsed"`
}

type History struct {
	Rounds  []RoundRecord `json:"rounds"`
	Elapsed time.Duration `json:"elapsed"`
}

type Client struct {
	ID string `json:"id"`
}

type ClientPage struct {
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Total   uint64   `json:"total"`
	Clients []Client `json:"clients"`
}

type Health struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
	Time       string `json:"time"`
}

func (sdk *flockSDK) GetStatus() (Status, error) {
	url := sdk.coordinatorURL + statusEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Status{}, err
	}

	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		return Status{}, err
	}

	return s, nil
}

func (sdk *flockSDK) GetHistory() (History, error) {
	url := sdk.coordinatorURL + historyEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return History{}, err
	}

	var h History
	if err := json.Unmarshal(body, &h); err != nil {
		return History{}, err
	}

	return h, nil
}

func (sdk *flockSDK) ListClients(offset, limit uint64) (ClientPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	url := sdk.coordinatorURL + clientsEndpoint
	if len(queries) > 0 {
		url = fmt.Sprintf("%s?%s", url, strings.Join(queries, "&"))
	}

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return ClientPage{}, err
	}

	var p ClientPage
	if err := json.Unmarshal(body, &p); err != nil {
		return ClientPage{}, err
	}

	return p, nil
}

func (sdk *flockSDK) Health() (Health, error) {
	url := sdk.coordinatorURL + healthEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Health{}, err
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return Health{}, err
	}

	return h, nil
}
