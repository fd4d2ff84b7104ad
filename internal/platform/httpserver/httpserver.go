// Package httpserver builds the *http.Server the countries API listens on.
package httpserver

import (
	"net/http"
	"time"
)

// writeSlack is how long past the handler timeout a response may still be written.
const writeSlack = 5 * time.Second

// New returns a server for handler on addr. handlerTimeout is the deadline the
// routes put on request contexts; the write timeout sits just above it so a
// request that hits its deadline still gets its error response out.
func New(addr string, handler http.Handler, handlerTimeout time.Duration) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	if handlerTimeout > 0 {
		srv.WriteTimeout = handlerTimeout + writeSlack
	}
	return srv
}
