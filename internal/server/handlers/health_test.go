package handlers

import (
	"context"
	"testing"

	"github.com/maruel/emojistore/internal/models"
)

func TestHealthHandler_Health(t *testing.T) {
	for _, version := range []string{"1.0.0", "dev", ""} {
		t.Run(version, func(t *testing.T) {
			resp, err := NewHealthHandler(version).Health(context.Background(), &models.HealthRequest{})
			if err != nil {
				t.Fatalf("Health() error = %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("Status = %q, want ok", resp.Status)
			}
			if resp.Version != version {
				t.Errorf("Version = %q, want %q", resp.Version, version)
			}
		})
	}
}
