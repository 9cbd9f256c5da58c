package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	pluginv1 "taskflow/api/plugin/v1"
	"taskflow/internal/logging"
	"taskflow/internal/record"
)

// RemoteOptions tune calls to an out-of-process plugin.
type RemoteOptions struct {
	Timeout  time.Duration // per attempt, 0 = none
	Attempts int           // retries after the first call
	Backoff  time.Duration
}

// GRPCClient dials a plugin over gRPC and exposes it as a Transformer.
type GRPCClient struct {
	conn *grpc.ClientConn
	svc  pluginv1.TransformClient
	opts RemoteOptions
}

// NewGRPCClient prepares a client for target. The connection is established
// lazily on the first call.
func NewGRPCClient(target string, ro RemoteOptions, dialOpts ...grpc.DialOption) (*GRPCClient, error) {
	if len(dialOpts) == 0 {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{
		conn: conn,
		svc:  pluginv1.NewTransformClient(conn),
		opts: ro,
	}, nil
}

// Describe asks the plugin for its metadata.
func (c *GRPCClient) Describe(ctx context.Context) (map[string]any, error) {
	resp, err := c.svc.Describe(ctx, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

func (c *GRPCClient) Transform(ctx context.Context, f *record.File) ([]*record.File, error) {
	req, err := pluginv1.EncodeFile(pluginv1.File{Path: f.Path, Base: f.Base, Contents: f.Contents, Attrs: f.Attrs})
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, req, f.Path)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp, f)
}

// call retries transport failures only; whatever the plugin answers is final.
func (c *GRPCClient) call(ctx context.Context, req *structpb.Struct, p string) (*structpb.Struct, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 0 {
			logging.L().Debug("retrying remote transform", "path", p, "attempt", attempt, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.Backoff):
			}
		}
		resp, err := c.apply(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *GRPCClient) apply(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	return c.svc.Apply(ctx, req)
}

func decodeReply(resp *structpb.Struct, in *record.File) ([]*record.File, error) {
	status, files, msg, err := pluginv1.DecodeResponse(resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case pluginv1.StatusDrop:
		return nil, nil
	case pluginv1.StatusError:
		if msg == "" {
			msg = "plugin reported an error"
		}
		return nil, errors.New(msg)
	case pluginv1.StatusOK:
	default:
		return nil, fmt.Errorf("unknown plugin status %q", status)
	}

	out := make([]*record.File, 0, len(files))
	for _, wf := range files {
		base := wf.Base
		if base == "" {
			base = in.Base
		}
		rf, err := record.New(base, wf.Path, wf.Contents)
		if err != nil {
			return nil, err
		}
		rf.Attrs, rf.Mode, rf.ModTime = wf.Attrs, in.Mode, in.ModTime
		out = append(out, rf)
	}
	return out, nil
}

func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
