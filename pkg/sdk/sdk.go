// Package sdk is an HTTP client for the coordinator API, used by the CLI
// and by external tooling.
package sdk

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

type SDK interface {
	// GetStatus returns the coordinator's current run status.
	//
	// example:
	//  status, _ := sdk.GetStatus()
	//  fmt.Println(status)
	GetStatus() (Status, error)

	// GetHistory returns the per-round history of the current or last run.
	//
	// example:
	//  history, _ := sdk.GetHistory()
	//  fmt.Println(history)
	GetHistory() (History, error)

	// ListClients lists the registered participants.
	//
	// example:
	//  clientPage, _ := sdk.ListClients(0, 10)
	//  fmt.Println(clientPage)
	ListClients(offset uint64, limit uint64) (ClientPage, error)

	// Health checks the coordinator's health endpoint.
	//
	// example:
	//  health, _ := sdk.Health()
	//  fmt.Println(health)
	Health() (Health, error)
}

type flockSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flockSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *flockSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
