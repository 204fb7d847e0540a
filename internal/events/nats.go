package events

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamtip/sponsord/pkg/logger"
	"github.com/streamtip/sponsord/pkg/retry"
)

// ConnectNATS dials the messaging server with reconnect-forever semantics.
// The initial dial itself is retried a few times so a service starting
// alongside its broker does not lose the race.
func ConnectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectHandler(func(nc *nats.Conn) {
			logger.Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	var nc *nats.Conn
	err := retry.Constant(func() error {
		var dialErr error
		nc, dialErr = nats.Connect(url, opts...)
		return dialErr
	}, retry.DefaultInterval, retry.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	return nc, nil
}
