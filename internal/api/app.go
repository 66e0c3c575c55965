// Package api exposes the availability controller, the action queue and the
// connectivity observer to local clients over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunServerInterruptible serves h on addr in the background. Closing or sending
// on stop shuts the server down gracefully; done reports how it ended.
func RunServerInterruptible(addr string, h *Handler) (stop chan<- struct{}, done <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCh := make(chan struct{})
	doneCh := make(chan error, 1)

	go func() {
		log.Infof("availsync listening on %s", srv.Addr)
		err := srv.ListenAndServe()
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneCh <- err
			return
		}
		doneCh <- nil
	}()

	go func() {
		<-stopCh
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	return stopCh, doneCh
}
