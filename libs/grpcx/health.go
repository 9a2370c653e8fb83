package grpcx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheck returns a readiness probe that calls grpc.health.v1.Health/Check on addr.
// The connection is dialled lazily and reused across probes.
func HealthCheck(addr string, opts DialOptions) func(context.Context) error {
	var (
		mu   sync.Mutex
		conn *grpc.ClientConn
	)
	return func(ctx context.Context) error {
		if addr == "" {
			return errors.New("grpc address not configured")
		}
		mu.Lock()
		if conn == nil {
			c, err := Dial(ctx, addr, opts)
			if err != nil {
				mu.Unlock()
				return err
			}
			conn = c
		}
		cc := conn
		mu.Unlock()

		resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("upstream status %s", resp.GetStatus())
		}
		return nil
	}
}
