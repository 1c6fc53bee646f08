package common

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
)

// CallQuery describes one eth_call-style query against the grpc gateway.
// Args is marshalled to JSON and base64-encoded into the "args" parameter.
// ChainID and ProposerAddress are only sent when non-nil: for the remote
// service their absence is semantically different from an empty value.
type CallQuery struct {
	Args            map[string]interface{}
	ChainID         *string
	ProposerAddress *string
}

func (q *CallQuery) Values() (url.Values, error) {
	body, err := SonicCfg.Marshal(q.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call args: %w", err)
	}
	values := url.Values{}
	values.Set("args", base64.StdEncoding.EncodeToString(body))
	if q.ChainID != nil {
		values.Set("chain_id", *q.ChainID)
	}
	if q.ProposerAddress != nil {
		values.Set("proposer_address", *q.ProposerAddress)
	}
	return values, nil
}

// WithChainID returns a copy of the query carrying the given chain id.
func (q CallQuery) WithChainID(chainID string) CallQuery {
	q.ChainID = &chainID
	return q
}

// WithProposerAddress returns a copy of the query carrying the proposer's
// consensus address, base64-encoded.
func (q CallQuery) WithProposerAddress(addr []byte) CallQuery {
	enc := base64.StdEncoding.EncodeToString(addr)
	q.ProposerAddress = &enc
	return q
}

// CallResult is the gateway's response shape. Code 0 denotes success; Ret,
// when present, is base64-encoded big-endian binary data.
type CallResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Ret     string `json:"ret"`
}

func (r *CallResult) RetBytes() ([]byte, error) {
	if r.Ret == "" {
		return nil, fmt.Errorf("response carries no ret data")
	}
	return base64.StdEncoding.DecodeString(r.Ret)
}

// RetBigInt decodes ret as a big-endian unsigned integer.
func (r *CallResult) RetBigInt() (*big.Int, error) {
	b, err := r.RetBytes()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
