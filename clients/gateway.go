package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/noderig/noderig/common"
	"github.com/noderig/noderig/util"
	"github.com/rs/zerolog"
)

// GatewayClient issues eth_call-style queries against a node's grpc gateway
// REST surface. It performs exactly one HTTP GET per SendQuery call; retry
// semantics live in RetryingClient.
type GatewayClient struct {
	baseURL    *url.URL
	logger     *zerolog.Logger
	httpClient *http.Client
}

func NewGatewayClient(logger *zerolog.Logger, host string, port int, callPath string) (*GatewayClient, error) {
	parsed, err := url.Parse(fmt.Sprintf("http://%s:%d%s", host, port, callPath))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}

	client := &GatewayClient{
		baseURL: parsed,
		logger:  logger,
	}

	if util.IsTest() {
		client.httpClient = &http.Client{}
	} else {
		client.httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return client, nil
}

// SendQuery encodes the query into the url parameters, performs the GET and
// decodes the gateway's {code, message, ret} body. Transport failures and
// undecodable bodies are returned as plain errors: they are the harness's
// problem, not an application outcome.
func (c *GatewayClient) SendQuery(ctx context.Context, query common.CallQuery) (*common.CallResult, error) {
	values, err := query.Values()
	if err != nil {
		return nil, err
	}

	reqURL := *c.baseURL
	reqURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var result common.CallResult
	if err := common.SonicCfg.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	c.logger.Trace().
		Str("url", reqURL.String()).
		Int("code", result.Code).
		Str("message", result.Message).
		Msg("gateway query answered")

	return &result, nil
}
