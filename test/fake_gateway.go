package test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/noderig/noderig/common"
)

// FakeGateway emulates a node's grpc gateway REST surface for tests. It
// reproduces the observable behaviors of the real service: a recovering
// backend that reports connection-refused for its first requests, the
// grpc-only mode's insistence on a proposer address, and chain-id parsing.
type FakeGateway struct {
	Port     int
	CallPath string

	// GrpcOnly switches on the restricted-mode behaviors.
	GrpcOnly bool
	// GrpcPort is the backend port quoted in connection-refused messages.
	GrpcPort int
	// RecoverAfter is how many requests report the backend as refused
	// before it becomes serviceable.
	RecoverAfter int
	// ChainIDValue is returned big-endian in ret on success.
	ChainIDValue uint64

	server          *http.Server
	mu              sync.Mutex
	requestsHandled int
}

func (g *FakeGateway) Start() error {
	mux := http.NewServeMux()
	if g.CallPath == "" {
		g.CallPath = common.DefaultCallPath
	}
	mux.HandleFunc(g.CallPath, g.handleCall)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", g.Port))
	if err != nil {
		return err
	}
	if g.Port == 0 {
		g.Port = ln.Addr().(*net.TCPAddr).Port
	}

	g.server = &http.Server{Handler: mux}
	go func() {
		_ = g.server.Serve(ln)
	}()
	return nil
}

func (g *FakeGateway) Stop() error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *FakeGateway) RequestsHandled() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requestsHandled
}

func (g *FakeGateway) handleCall(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.requestsHandled++
	handled := g.requestsHandled
	g.mu.Unlock()

	writeResult := func(result common.CallResult) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := common.SonicCfg.Marshal(result)
		_, _ = w.Write(body)
	}

	if g.RecoverAfter > 0 && handled <= g.RecoverAfter {
		writeResult(common.CallResult{
			Code: 14,
			Message: fmt.Sprintf(
				"connection error: dial tcp 127.0.0.1:%d: connect: connection refused", g.GrpcPort),
		})
		return
	}

	query := r.URL.Query()
	if query.Get("args") == "" {
		writeResult(common.CallResult{Code: 3, Message: "empty args"})
		return
	}

	chainID := query.Get("chain_id")
	if chainID != "" {
		if _, err := strconv.ParseUint(chainID, 10, 64); err != nil {
			writeResult(common.CallResult{
				Code:    3,
				Message: fmt.Sprintf("strconv.ParseUint: parsing %q: invalid syntax", chainID),
			})
			return
		}
	}

	if g.GrpcOnly && query.Get("proposer_address") == "" {
		writeResult(common.CallResult{Code: 2, Message: "validator does not exist"})
		return
	}

	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, g.ChainIDValue)
	writeResult(common.CallResult{
		Code: 0,
		Ret:  base64.StdEncoding.EncodeToString(ret),
	})
}
