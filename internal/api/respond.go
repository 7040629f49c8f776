package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"unicode/utf8"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json; charset=utf-8"
)

// Static errors for err113 compliance.
var (
	errNotANumber = errors.New("must be a number")
	errNotAnInt   = errors.New("must be an integer")
	errNotABool   = errors.New("must be true or false")
	errOutOfRange = errors.New("is out of range")
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("write json failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst. Callers that accept an
// empty body check for io.EOF themselves.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	return json.NewDecoder(r.Body).Decode(dst) //nolint:wrapcheck
}

// queryFloat parses a float query parameter, returning the fallback when the
// parameter is absent and rejecting values outside [minVal, maxVal].
func queryFloat(r *http.Request, key string, fallback, minVal, maxVal float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %w", key, errNotANumber)
	}

	if value < minVal || value > maxVal {
		return 0, fmt.Errorf("%s %w", key, errOutOfRange)
	}

	return value, nil
}

// queryInt parses an integer query parameter with the same contract as
// queryFloat.
func queryInt(r *http.Request, key string, fallback, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %w", key, errNotAnInt)
	}

	if value < minVal || value > maxVal {
		return 0, fmt.Errorf("%s %w", key, errOutOfRange)
	}

	return value, nil
}

// queryBool parses a boolean query parameter.
func queryBool(r *http.Request, key string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s %w", key, errNotABool)
	}

	return value, nil
}

// round3 rounds scores to three decimals for response payloads.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// preview clips s to at most maxLen bytes without splitting a rune.
func preview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
