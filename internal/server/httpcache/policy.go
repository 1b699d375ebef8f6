package httpcache

import (
	"strconv"
	"time"
)

// Policy renders the Cache-Control header sent with cached GET responses.
type Policy struct {
	MaxAge  time.Duration
	NoCache bool
}

// PrivateMaxAge lets the client reuse the response for maxAge.
func PrivateMaxAge(maxAge time.Duration) Policy {
	return Policy{MaxAge: maxAge}
}

// Revalidate forces the client to revalidate with If-None-Match every time.
func Revalidate() Policy {
	return Policy{NoCache: true}
}

func (p Policy) String() string {
	if p.NoCache {
		return "private, no-cache"
	}
	return "private, max-age=" + strconv.FormatInt(int64(p.MaxAge/time.Second), 10)
}
