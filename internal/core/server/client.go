package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/core/db"
)

// Client calls healthsignals.v1.EvaluationService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a plaintext client for target (host:port).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Evaluate runs one remote evaluation.
func (c *Client) Evaluate(ctx context.Context, req api.EvaluateRequest) (*api.EvaluateResponse, error) {
	var resp api.EvaluateResponse
	if err := c.call(ctx, MethodEvaluate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRules returns the server's configured rule catalog.
func (c *Client) ListRules(ctx context.Context) (*api.RuleCatalog, error) {
	var catalog api.RuleCatalog
	if err := c.call(ctx, MethodListRules, struct{}{}, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// GetEvaluation returns an audited evaluation.
func (c *Client) GetEvaluation(ctx context.Context, id string) (*db.EvaluationRecord, error) {
	var rec db.EvaluationRecord
	req := map[string]string{"evaluationId": id}
	if err := c.call(ctx, MethodGetEvaluation, req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}
