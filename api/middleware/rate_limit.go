package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/checkout-engine/api/responses"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

// maxRateLimitBody caps how much of the body is buffered to find the email.
const maxRateLimitBody = 64 << 10

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one public surface. Each limit counts requests
// per fixed window; a zero limit disables that dimension.
type RateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "public"
	}
	return RateLimitPolicy{Name: name, Window: window, IPLimit: ipLimit, EmailLimit: emailLimit}
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.EmailLimit > 0)
}

// rateCheck is one counter a request is charged against.
type rateCheck struct {
	dimension string
	subject   string
	limit     int
}

// RateLimit rejects requests over the policy with 429 and a Retry-After
// header. Emails are hashed before they reach the counter key or the logs.
func RateLimit(policy RateLimitPolicy, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks, err := policy.checksFor(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}

			for _, check := range checks {
				scope := policy.Name + ":" + check.dimension + ":" + check.subject
				allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(check.limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if allowed {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.Name,
						"dimension": check.dimension,
						"subject":   check.subject,
						"attempts":  count,
						"limit":     check.limit,
					}), "request rate limited")
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(policy.Window)))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checksFor lists the counters the request is charged against. Reading the
// email restores the body for the next handler.
func (p RateLimitPolicy) checksFor(r *http.Request) ([]rateCheck, error) {
	var checks []rateCheck
	if p.IPLimit > 0 {
		if ip := clientIP(r); ip != "" {
			checks = append(checks, rateCheck{dimension: "ip", subject: ip, limit: p.IPLimit})
		}
	}
	if p.EmailLimit == 0 || r.Body == nil {
		return checks, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxRateLimitBody {
		// too large to be a credential payload; leave it for the body validator
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		return checks, nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if email := emailFromBody(body); email != "" {
		checks = append(checks, rateCheck{dimension: "email", subject: digest(email), limit: p.EmailLimit})
	}
	return checks, nil
}

func retryAfterSeconds(window time.Duration) int {
	secs := int(window / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP prefers the first valid X-Forwarded-For hop, then X-Real-IP, then
// the socket address.
func clientIP(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := net.ParseIP(strings.TrimSpace(hop)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// emailFromBody accepts a top-level email or a guest contact email, lowercased.
func emailFromBody(payload []byte) string {
	var body struct {
		Email   string `json:"email"`
		Contact *struct {
			Email string `json:"email"`
		} `json:"contact"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	email := body.Email
	if email == "" && body.Contact != nil {
		email = body.Contact.Email
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}
