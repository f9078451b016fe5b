package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/report"
	"github.com/AaronLay10/pipecheck/internal/validate"
)

const (
	defaultDocumentName = "request.yaml"
	cacheHeader         = "X-Pipecheck-Cache"
)

// cacheKey covers the name too, since the report echoes it back as Source.
func cacheKey(name string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// statusFor maps a report to the response code: 200 PASS, 422 FAIL and
// 400 when the document could not be parsed.
func statusFor(rep *validate.Report) int {
	switch {
	case rep.ParseFailed():
		return http.StatusBadRequest
	case !rep.Passed():
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		s.metrics.recordRejected()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "document too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultDocumentName
	}

	key := cacheKey(name, body)
	if cached, ok := s.cache.Get(key); ok {
		rep := cached.(*validate.Report)
		s.metrics.recordCache(true)
		w.Header().Set(cacheHeader, "hit")
		writeJSON(w, statusFor(rep), report.NewResult(rep))
		return
	}
	s.metrics.recordCache(false)

	s.bus.EmitStarted(name, "api")
	rep := s.validator.ValidateBytes(r.Context(), name, body)
	s.cache.Set(key, rep, gocache.DefaultExpiration)
	s.metrics.recordVerdict(rep.Passed(), rep.ParseFailed())
	s.bus.EmitReport(rep)

	s.log.Info("validation served",
		zap.String("run_id", rep.RunID),
		zap.String("source", name),
		zap.String("verdict", rep.Verdict()),
		zap.Int("errors", len(rep.Errors())),
		zap.Int("warnings", len(rep.Warnings())))

	w.Header().Set(cacheHeader, "miss")
	writeJSON(w, statusFor(rep), report.NewResult(rep))
}
