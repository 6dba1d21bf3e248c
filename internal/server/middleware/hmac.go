package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/crypto"
)

// maxSignedBody caps how much of a signed request body the verifier will
// buffer. It must be at least as large as the biggest body a handler behind
// this middleware accepts.
const maxSignedBody = 32 << 20 // 32 MiB

// RequestVerifier checks a signed request against a shared secret.
// Implemented by crypto.RequestSigner.
type RequestVerifier interface {
	Verify(key, timestamp, signature, method, path, body string, now time.Time) error
}

// HMACAuth returns middleware that verifies HMAC-signed requests using the
// X-Odds-Key, X-Odds-Timestamp, and X-Odds-Signature headers. The request
// body is buffered for verification and handed to the next handler intact.
// If verifier is nil, signing is disabled and all requests pass through.
func HMACAuth(verifier RequestVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(crypto.HeaderKey)
			ts := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if key == "" || ts == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					w.Write([]byte(`{"error":"request body too large"}`))
					return
				}
				writeUnauthorized(w, "reading request body failed")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := verifier.Verify(key, ts, sig, r.Method, r.URL.Path, string(body), time.Now()); err != nil {
				logger.Warn("hmac verification failed",
					slog.String("key", key),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				if errors.Is(err, crypto.ErrClockSkew) {
					writeUnauthorized(w, "timestamp outside allowed window")
					return
				}
				// Unknown key and bad signature collapse into one message so
				// probes cannot tell which check failed.
				writeUnauthorized(w, "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
