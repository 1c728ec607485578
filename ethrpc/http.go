package ethrpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/cors"
)

const maxRequestContentLength = 5 * 1024 * 1024

// HTTPHandler wraps Server as a plain HTTP POST JSON-RPC endpoint, wrapped
// in CORS middleware — the same rs/cors package the teacher's go.mod
// already carries for its own RPC HTTP server.
func HTTPHandler(s *Server, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestContentLength+1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxRequestContentLength {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		var batch []Request
		if err := json.Unmarshal(body, &batch); err == nil {
			responses := make([]Response, len(batch))
			for i, req := range batch {
				responses[i] = s.Call(r.Context(), req)
			}
			json.NewEncoder(w).Encode(responses)
			return
		}

		var single Request
		if err := json.Unmarshal(body, &single); err != nil {
			json.NewEncoder(w).Encode(Response{
				Version: "2.0",
				Error:   &ResponseError{Code: CodeParseError, Message: "parse error: " + err.Error()},
			})
			return
		}
		json.NewEncoder(w).Encode(s.Call(r.Context(), single))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}
