package channel

import "context"

// Connector is satisfied by any Runtime; Reconnect is a free function
// rather than a default method (Go interfaces carry no default bodies) so
// every protocol package shares one retry implementation instead of
// reimplementing disconnect-then-connect.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Reconnect disconnects (ignoring any error, since the connection may
// already be broken) and attempts to connect again.
func Reconnect(ctx context.Context, c Connector) error {
	_ = c.Disconnect(ctx)
	return c.Connect(ctx)
}
