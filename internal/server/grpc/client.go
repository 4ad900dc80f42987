package grpc

import (
	"context"

	"github.com/ekisa-team/flamingo/internal/wire"
	"google.golang.org/grpc"
)

// Client calls the transcription service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Transcribe sends one transcription request.
func (c *Client) Transcribe(ctx context.Context, req *TranscribeRequest, opts ...grpc.CallOption) (*TranscribeResponse, error) {
	out := new(TranscribeResponse)
	opts = append([]grpc.CallOption{wire.CallOption()}, opts...)
	if err := c.conn.Invoke(ctx, methodTranscribe, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
