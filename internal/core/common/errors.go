package common

import (
	"errors"
	"net/http"
)

// Error kinds surfaced by the deduplication pipeline. Callers wrap them with
// fmt.Errorf("...: %w", ErrX) and match them with errors.Is.
var (
	ErrParseFailure         = errors.New("could not parse uploaded file")
	ErrInvalidSelection     = errors.New("invalid column selection")
	ErrInvalidThreshold     = errors.New("similarity threshold must be in (0, 1]")
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")
	ErrUnknownSession       = errors.New("session not found")
	ErrUnknownGroup         = errors.New("duplicate group not found")
	ErrSessionNotAnalyzed   = errors.New("session has not been analyzed")
	ErrSessionConflict      = errors.New("session was changed by another request")
)

// Kind describes how an error is reported across the request boundary.
type Kind struct {
	Status int
	Code   string
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrParseFailure, Kind{http.StatusBadRequest, "parse_failure"}},
	{ErrInvalidSelection, Kind{http.StatusBadRequest, "invalid_selection"}},
	{ErrInvalidThreshold, Kind{http.StatusBadRequest, "invalid_threshold"}},
	{ErrEmbeddingUnavailable, Kind{http.StatusServiceUnavailable, "embedding_unavailable"}},
	{ErrUnknownSession, Kind{http.StatusNotFound, "unknown_session"}},
	{ErrUnknownGroup, Kind{http.StatusNotFound, "unknown_group"}},
	{ErrSessionNotAnalyzed, Kind{http.StatusConflict, "session_not_analyzed"}},
	{ErrSessionConflict, Kind{http.StatusConflict, "session_conflict"}},
}

// KindOf classifies err. Unrecognised errors are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return Kind{http.StatusInternalServerError, "internal"}
}

// Retryable reports whether the same request may succeed later without changes.
func Retryable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrSessionConflict)
}
