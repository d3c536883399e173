package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"agroledger/gateway/models"
)

// Idempotency replays the recorded response for a POST that carries an
// Idempotency-Key the gateway has already answered. Only settled (2xx)
// responses are recorded: a failed transition may be retried under the same
// key. Reusing a key with a different payload is rejected rather than
// replayed, since the caller is asking for a different operation.
func Idempotency(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			digest := sha256.Sum256(append([]byte(r.URL.Path+"\x00"), body...))
			requestHash := hex.EncodeToString(digest[:])

			var record models.IdempotencyKey
			if err := db.First(&record, "key = ?", key).Error; err == nil {
				if record.RequestHash != requestHash {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusConflict)
					_, _ = io.WriteString(w, `{"code":"IDEMPOTENCY_MISMATCH","error":"idempotency key was used with a different request"}`)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(record.Status)
				_, _ = io.WriteString(w, record.Response)
				return
			}

			capture := &capturedResponse{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.status
			if status == 0 {
				status = http.StatusOK
			}
			if status < http.StatusOK || status >= http.StatusMultipleChoices {
				return
			}
			_ = db.Create(&models.IdempotencyKey{
				Key:         key,
				RequestID:   uuid.NewString(),
				Method:      r.Method,
				Path:        r.URL.Path,
				RequestHash: requestHash,
				Status:      status,
				Response:    capture.body.String(),
				CreatedAt:   time.Now(),
			}).Error
		})
	}
}

// capturedResponse buffers the outgoing response so a settled operation can be
// replayed verbatim.
type capturedResponse struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *capturedResponse) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturedResponse) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
