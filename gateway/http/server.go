// Package http is a small JSON front-end for a uds.Connection, grounded
// on the teacher's HTTP gateway (gateway_http_server.go): a regex-matched
// route table behind a single http.ServeMux handler, returning a JSON
// envelope instead of a CiA 309-5 plaintext line.
package http

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	uds "github.com/JoSglch/uds-odx"
)

var didURIPattern = regexp.MustCompile(`^/did/([^/]+)$`)

// Server exposes a uds.Connection over HTTP. Exchanges are serialized
// through mu because a Connection owns its Transport for the duration of
// one call (spec.md §5) and cannot run two exchanges at once.
type Server struct {
	mu   sync.Mutex
	conn *uds.Connection
	mux  *http.ServeMux
}

// NewServer wires conn behind an HTTP handler exposing
// GET /did/{name} and GET /did/{name1},{name2},...
func NewServer(conn *uds.Connection) *Server {
	s := &Server{conn: conn, mux: http.NewServeMux()}
	s.mux.HandleFunc("/did/", s.handleReadDID)
	return s
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleReadDID(w http.ResponseWriter, r *http.Request) {
	log.Debugf("[gateway/http] %s %s", r.Method, r.URL.Path)

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, uds.ErrUnknownIdentifier)
		return
	}

	match := didURIPattern.FindStringSubmatch(r.URL.Path)
	if match == nil {
		writeError(w, http.StatusNotFound, uds.ErrUnknownIdentifier)
		return
	}
	names := strings.Split(match[1], ",")

	s.mu.Lock()
	result, err := s.conn.ReadDataByIdentifier(names...)
	s.mu.Unlock()

	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	if neg, ok := result.(*uds.NegativeResponse); ok {
		writeJSON(w, http.StatusUnprocessableEntity, negativeResponseBody{NRC: neg.NRC, NRCLabel: neg.NRCLabel})
		return
	}

	writeJSON(w, http.StatusOK, didResponse{Data: result})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("[gateway/http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	switch err {
	case uds.ErrUnknownIdentifier:
		return http.StatusNotFound
	case uds.ErrAmbiguousConcatenation:
		return http.StatusBadRequest
	case uds.ErrTransportTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
