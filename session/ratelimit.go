package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/doccat/server/broker"
)

// LoginRateLimiter enforces spec §4.8's 10/minute/source-address login
// throttle using the Cache/Broker's existing get/set+TTL primitives
// (fixed-window counter), rather than introducing a separate limiter
// dependency no corpus repo carries.
type LoginRateLimiter struct {
	br          broker.Broker
	perMinute   int
}

func NewLoginRateLimiter(br broker.Broker, perMinute int) *LoginRateLimiter {
	return &LoginRateLimiter{br: br, perMinute: perMinute}
}

const loginRateKeyPrefix = "ratelimit:login:"

// Allow increments the counter for sourceAddr's current one-minute window
// and reports whether the attempt should proceed.
func (l *LoginRateLimiter) Allow(ctx context.Context, sourceAddr string) (bool, error) {
	window := time.Now().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("%s%s:%d", loginRateKeyPrefix, sourceAddr, window)

	data, ok, err := l.br.Get(ctx, key)
	if err != nil {
		return false, err
	}
	count := 0
	if ok {
		count, _ = strconv.Atoi(string(data))
	}
	if count >= l.perMinute {
		return false, nil
	}
	count++
	if err := l.br.Set(ctx, key, []byte(strconv.Itoa(count)), 2*time.Minute); err != nil {
		return false, err
	}
	return true, nil
}
