package worker

// Example job handlers for demonstration. Users should register their own
// handlers based on their needs.

import (
	"context"
	"time"

	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/serialization"
)

// HandleSendEmail simulates sending an email
func HandleSendEmail(ctx context.Context, j job.View, data []byte) error {
	var email struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := serialization.NewJSONSerializer().Unmarshal(data, &email); err != nil {
		return err
	}
	logger.Info("Sending email", "job_id", j.ID, "to", email.To)
	select {
	case <-time.After(2 * time.Second): // Simulate work
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEcho logs the payload and succeeds immediately
func HandleEcho(ctx context.Context, j job.View, data []byte) error {
	logger.Info("Echo job", "job_id", j.ID, "attempt", j.Attempt, "payload_bytes", len(data))
	return nil
}
