// Package main provides the papaya API server for submitting jobs and
// inspecting queue metrics over HTTP.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/muaviaUsmani/papaya/internal/config"
	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/metrics"
	"github.com/muaviaUsmani/papaya/pkg/client"
)

type createJobRequest struct {
	Name           string          `json:"name"`
	Payload        json.RawMessage `json:"payload"`
	Retry          bool            `json:"retry"`
	RetryTimes     int             `json:"retry_times"`
	RetryIntervalS int             `json:"retry_interval_seconds"`
	TimeoutS       int             `json:"timeout_seconds"`
	ScheduledFor   *time.Time      `json:"scheduled_for"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	apiLog := log.WithComponent(logger.ComponentAPI)

	c, err := client.NewWithNamespace(cfg.RedisURL, cfg.Namespace)
	if err != nil {
		apiLog.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	mux := http.NewServeMux()

	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}

		var opts []client.JobOption
		if req.Retry {
			opts = append(opts, client.WithRetry(req.RetryTimes, time.Duration(req.RetryIntervalS)*time.Second))
		}
		if req.TimeoutS > 0 {
			opts = append(opts, client.WithProcessTimeout(time.Duration(req.TimeoutS)*time.Second))
		}
		if req.ScheduledFor != nil {
			opts = append(opts, client.WithScheduleAt(*req.ScheduledFor))
		}

		id, err := c.Create(r.Context(), req.Name, []byte(req.Payload), opts...)
		if err != nil {
			apiLog.Error("Failed to create job", "job_name", req.Name, "error", err)
			http.Error(w, "failed to create job", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createJobResponse{ID: id})
	})

	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if id == "" {
			http.Error(w, "job id is required", http.StatusBadRequest)
			return
		}

		j, err := c.Job(r.Context(), id)
		if err != nil {
			if qerrors.IsNotFound(err) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			apiLog.Error("Failed to fetch job", "job_id", id, "error", err)
			http.Error(w, "failed to fetch job", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(j)
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.Default().Snapshot())
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := ":" + cfg.APIPort
	apiLog.Info("API server starting", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		apiLog.Error("API server exited", "error", err)
		os.Exit(1)
	}
}
