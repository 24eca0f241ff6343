package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/curation"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
)

// callbackRequest is the JSON body the admin chat transport posts. The
// payload keeps the "<action>_<id>" wire shape of the chat buttons.
type callbackRequest struct {
	Payload string `json:"payload"`
	Actor   string `json:"actor"`
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Host the admin callback endpoint plus health and metrics",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withDB(); err != nil {
				return err
			}
			return serve(a)
		},
	}
}

func serve(a *app) error {
	bridge := curation.New(a.db, a.log)
	log := a.log.WithComponent("serve")

	// Callbacks for the same spot must apply in receipt order; one worker
	// drains the queue sequentially.
	type queued struct {
		ev   *curation.Event
		done chan error
	}
	queue := make(chan queued, 64)
	var closeQueue sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for q := range queue {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			q.done <- bridge.Apply(ctx, q.ev)
			cancel()
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.AdminToken != "" && r.Header.Get("X-Admin-Token") != a.cfg.AdminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req callbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		ev, err := curation.ParseCallback(req.Payload, req.Actor)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		done := make(chan error, 1)
		queue <- queued{ev: ev, done: done}
		if err := <-done; err != nil {
			if errs.Is(err, errs.ErrValidation) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			log.Error("callback apply failed", err, logging.String("payload", req.Payload))
			http.Error(w, "apply failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "payload": req.Payload})
	}).Methods(http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := a.db.Conn().PingContext(r.Context()); err != nil {
			status = "db unreachable"
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}).Methods(http.MethodGet)

	if a.cfg.MetricsEnable {
		router.Handle(a.cfg.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	server := &http.Server{Addr: ":" + a.cfg.Port, Handler: router}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down callback listener")
		ctx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
		defer cancel()
		server.Shutdown(ctx)
		// Shutdown returns once in-flight handlers finish; only then is it
		// safe to close the apply queue.
		closeQueue.Do(func() { close(queue) })
	}()

	fmt.Printf("callback listener on :%s\n", a.cfg.Port)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		closeQueue.Do(func() { close(queue) })
	}
	wg.Wait()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
