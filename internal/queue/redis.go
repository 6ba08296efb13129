package queue

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
)

// ParseRedisURL builds asynq connection options from a Redis address.
// Accepted forms are redis://[:password@]host:port[/db],
// rediss://[:password@]host:port[/db] for TLS, and a bare host:port.
func ParseRedisURL(redisURL string) (asynq.RedisClientOpt, error) {
	var opt asynq.RedisClientOpt

	if !strings.Contains(redisURL, "://") {
		opt.Addr = redisURL
		return opt, nil
	}

	u, err := url.Parse(redisURL)
	if err != nil {
		return opt, fmt.Errorf("invalid redis URL: %w", err)
	}

	switch u.Scheme {
	case "redis":
	case "rediss":
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	default:
		return opt, fmt.Errorf("unsupported redis URL scheme: %s (expected 'redis' or 'rediss')", u.Scheme)
	}

	if u.Host == "" {
		return opt, fmt.Errorf("redis URL missing host")
	}
	opt.Addr = u.Host

	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			opt.Password = password
		}
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return opt, fmt.Errorf("invalid database number in redis URL: %s", path)
		}
		opt.DB = db
	}

	return opt, nil
}
