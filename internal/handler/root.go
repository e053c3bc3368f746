package handler

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	Uptime      string `json:"uptime"`
}

// ServeRoot serves the static client from dir.
func ServeRoot(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}

// ServeUploads serves previously uploaded files from dir under prefix.
func ServeUploads(prefix, dir string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
}

// ServeHealth reports liveness along with connection and user counts.
func ServeHealth(connections, users func() int) http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, healthResponse{
			Status:      "ok",
			Connections: connections(),
			Users:       users(),
			Uptime:      time.Since(started).Round(time.Second).String(),
		})
	}
}
