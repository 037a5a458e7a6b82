package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus "github.com/prometheus/client_model/go"

	"github.com/chronofact/chronofact/internal/middleware"
	"github.com/chronofact/chronofact/internal/model"
)

type fakeDetector struct {
	result model.MisinfoAnalysis
	err    error
}

func (f fakeDetector) DetectMisinformation(ctx context.Context, text string) (model.MisinfoAnalysis, error) {
	return f.result, f.err
}

func TestDetect_ReturnsAnalysis(t *testing.T) {
	h := Detect(fakeDetector{result: model.MisinfoAnalysis{IsSuspicious: true, RiskLevel: model.RiskHigh}}, nil)

	body, _ := json.Marshal(map[string]any{"text": "a suspicious claim"})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp model.MisinfoAnalysis
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.IsSuspicious || resp.RiskLevel != model.RiskHigh {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestDetect_RecordsHighRiskMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	h := Detect(fakeDetector{result: model.MisinfoAnalysis{IsSuspicious: true, RiskLevel: model.RiskHigh}}, metrics)

	body, _ := json.Marshal(map[string]any{"text": "a suspicious claim"})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var m io_prometheus.Metric
	metrics.MisinfoHighRiskTotal.(prometheus.Metric).Write(&m)
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("misinfo_high_risk_total = %f, want 1", got)
	}
}

func TestDetect_RejectsEmptyText(t *testing.T) {
	h := Detect(fakeDetector{}, nil)

	body, _ := json.Marshal(map[string]any{})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
