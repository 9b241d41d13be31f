// Package redis connects to Redis and exposes it as a pub/sub transport for
// relaying broker messages between processes.
//
// Connect validates the URL (redis:// or rediss://), then pings with
// exponential backoff until the server answers or ConnectTimeout expires:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	tr := redis.NewTransport(client)
//	relay := bridge.New(tr, b, bridge.WithChannelPrefix(cfg.ChannelPrefix))
//
// Healthcheck returns a ping check suitable for health.Readiness.
//
// Errors: ErrEmptyConnectionURL, ErrFailedToParseRedisConnString,
// ErrRedisNotReady, ErrHealthcheckFailed, ErrSubscriptionClosed.
package redis
