package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/quadra/image"
)

// Client calls a remote exec service.
type Client struct {
	run    *connect.Client[RunRequest, RunResponse]
	getRun *connect.Client[GetRunRequest, RunInfo]
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:7411".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)
	return &Client{
		run:    connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, opts...),
		getRun: connect.NewClient[GetRunRequest, RunInfo](httpClient, baseURL+GetRunProcedure, opts...),
	}
}

// Run sends a request as is.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	res, err := c.run.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// RunImage encodes prog and runs it with the given stdin.
func (c *Client) RunImage(ctx context.Context, prog *image.Program, stdin string) (*RunResponse, error) {
	data, err := image.Marshal(prog)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, &RunRequest{Image: data, Stdin: stdin})
}

// GetRun fetches the record of an earlier run.
func (c *Client) GetRun(ctx context.Context, id string) (*RunInfo, error) {
	res, err := c.getRun.CallUnary(ctx, connect.NewRequest(&GetRunRequest{RunID: id}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
