package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) HealthCheck(ctx context.Context) error {
	return f.err
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{}, nil, nil)

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCheckAllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(&fakePinger{}, &fakePinger{}, client)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("status = %q, want %q", status.Status, StatusHealthy)
	}
	for _, dep := range []string{"database", "s3", "redis"} {
		if status.Dependencies[dep].Status != StatusHealthy {
			t.Errorf("dependency %q = %q, want %q", dep, status.Dependencies[dep].Status, StatusHealthy)
		}
	}
}

func TestCheckStoreFailureIsUnhealthy(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{err: errors.New("connection refused")}, &fakePinger{}, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("status = %q, want %q", status.Status, StatusUnhealthy)
	}
}

func TestCheckRedisFailureIsDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	checker := NewHealthChecker(&fakePinger{}, &fakePinger{}, client)
	status := checker.Check(context.Background())

	// The cache is an optimization; losing redis must not fail readiness.
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", status.Status, StatusDegraded)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		wantStatus int
	}{
		{name: "healthy dependencies", storeErr: nil, wantStatus: http.StatusOK},
		{name: "unhealthy store", storeErr: errors.New("down"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(&fakePinger{err: tt.storeErr}, nil, nil)

			rec := httptest.NewRecorder()
			checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var status HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatalf("body is not a health status: %v", err)
			}
		})
	}
}

func TestCheckNilDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("status = %q, want %q with no dependencies", status.Status, StatusHealthy)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("got %d dependencies, want 0", len(status.Dependencies))
	}
}
