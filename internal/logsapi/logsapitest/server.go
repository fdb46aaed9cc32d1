// Package logsapitest provides an in-process fake of the provider Logs API.
package logsapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Server is a scripted provider. Configure the exported fields before the
// first request; counters are safe to read afterwards.
type Server struct {
	*httptest.Server

	Counter string
	Token   string

	// Supported reports whether a single field can be exported. Defaults to
	// "every field".
	Supported func(field string) bool
	// RejectCombined makes any multi-field evaluation fail with HTTP 400.
	RejectCombined bool
	// Statuses is replayed by the status endpoint; the last entry repeats.
	Statuses []string
	// Parts are the bodies served for a processed job, keyed by part number.
	Parts map[int]string
	// FailSubmit makes submissions fail with HTTP 400.
	FailSubmit bool

	mu          sync.Mutex
	evaluations [][]string
	submissions []string
	statusCalls int
	downloads   []int
	nextID      int
}

// New starts a fake for counter "42" with token "tok".
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{Counter: "42", Token: "tok", Statuses: []string{"processed"}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Evaluations returns the field lists of every evaluate call.
func (s *Server) Evaluations() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.evaluations...)
}

// Submissions returns the raw query strings of every submit call.
func (s *Server) Submissions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submissions...)
}

// StatusCalls returns the number of status calls.
func (s *Server) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

// Downloads returns downloaded part numbers in order.
func (s *Server) Downloads() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.downloads...)
}

func (s *Server) supported(f string) bool {
	if s.Supported == nil {
		return true
	}
	return s.Supported(f)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"errors":  []map[string]string{{"error_type": "invalid_parameter", "message": msg}},
		"code":    code,
		"message": msg,
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "OAuth "+s.Token {
		apiError(w, http.StatusForbidden, "Access denied")
		return
	}
	prefix := "/management/v1/counter/" + s.Counter
	if !strings.HasPrefix(r.URL.Path, prefix) {
		apiError(w, http.StatusNotFound, "counter not found")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case rest == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"counter": map[string]any{"id": 42, "name": "test counter"}})

	case rest == "/logrequests/evaluate" && r.Method == http.MethodGet:
		fields := strings.Split(r.URL.Query().Get("fields"), ",")
		s.evaluations = append(s.evaluations, fields)
		if len(fields) > 1 && s.RejectCombined {
			apiError(w, http.StatusBadRequest, "Invalid fields set")
			return
		}
		possible := true
		for _, f := range fields {
			if !s.supported(f) {
				possible = false
			}
		}
		if len(fields) == 1 && !possible {
			apiError(w, http.StatusBadRequest, "Unknown field "+fields[0])
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"log_request_evaluation": map[string]any{"possible": possible, "expected_size": 1024 * len(fields)},
		})

	case rest == "/logrequests" && r.Method == http.MethodPost:
		s.submissions = append(s.submissions, r.URL.RawQuery)
		if s.FailSubmit {
			apiError(w, http.StatusBadRequest, "Quota exceeded")
			return
		}
		s.nextID++
		s.statusCalls = 0
		writeJSON(w, http.StatusOK, map[string]any{
			"log_request": map[string]any{"request_id": 1000 + s.nextID, "status": "created"},
		})

	case strings.HasPrefix(rest, "/logrequest/") && strings.Contains(rest, "/part/"):
		// /logrequest/{id}/part/{n}/download
		seg := strings.Split(strings.TrimPrefix(rest, "/logrequest/"), "/")
		if len(seg) != 4 || seg[3] != "download" {
			apiError(w, http.StatusNotFound, "bad path")
			return
		}
		n, err := strconv.Atoi(seg[2])
		if err != nil {
			apiError(w, http.StatusBadRequest, "bad part")
			return
		}
		s.downloads = append(s.downloads, n)
		body, ok := s.Parts[n]
		if !ok {
			apiError(w, http.StatusNotFound, fmt.Sprintf("part %d not found", n))
			return
		}
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, _ = w.Write([]byte(body))

	case strings.HasPrefix(rest, "/logrequest/") && strings.HasSuffix(rest, "/clean"):
		writeJSON(w, http.StatusOK, map[string]any{"log_request": map[string]any{"status": "cleaned_by_user"}})

	case strings.HasPrefix(rest, "/logrequest/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(rest, "/logrequest/")
		st := "processed"
		if len(s.Statuses) > 0 {
			i := s.statusCalls
			if i >= len(s.Statuses) {
				i = len(s.Statuses) - 1
			}
			st = s.Statuses[i]
		}
		s.statusCalls++
		lr := map[string]any{"request_id": json.Number(id), "status": st}
		if st == "processed" {
			parts := make([]map[string]any, 0, len(s.Parts))
			for n := 0; n < len(s.Parts); n++ {
				parts = append(parts, map[string]any{"part_number": n, "size": len(s.Parts[n])})
			}
			lr["parts"] = parts
		}
		writeJSON(w, http.StatusOK, map[string]any{"log_request": lr})

	default:
		apiError(w, http.StatusNotFound, "no route "+r.Method+" "+rest)
	}
}
