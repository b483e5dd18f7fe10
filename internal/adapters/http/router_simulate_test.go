package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datanav/internal/core/domain"
)

func TestSimulateEndpointReturnsProjections(t *testing.T) {
	sims := &stubSimulationService{result: sampleSimulationResult()}
	handler := newTestHandler(t, testBackends{simulations: sims}, Options{})

	body := `{"scenario":"school enrollment if current migration continues","horizon_months":24,"filters":{"category":"education"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var got domain.SimulationResult
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Narrative == "" {
		t.Fatalf("expected narrative, got empty")
	}
	if len(got.Projections) != 1 || got.Projections[0].Period != "2025-01" {
		t.Fatalf("unexpected projections: %+v", got.Projections)
	}

	if sims.gotReq.HorizonMonths != 24 {
		t.Fatalf("expected horizon 24, got %d", sims.gotReq.HorizonMonths)
	}
	if sims.gotReq.Filters.Category != "education" {
		t.Fatalf("unexpected filters: %+v", sims.gotReq.Filters)
	}
}

func TestSimulateEndpointMapsInvalidScenario(t *testing.T) {
	failing := &stubSimulationService{
		err: domain.WrapError(domain.ErrInvalidQuery, "validate scenario", errors.New("empty scenario")),
	}
	handler := newTestHandler(t, testBackends{simulations: failing}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader(`{"scenario":"","horizon_months":12}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body errorBody
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Kind != "invalid_query" {
		t.Fatalf("expected invalid_query kind, got %q", body.Error.Kind)
	}
}

func TestSimulateEndpointRejectsBadJSON(t *testing.T) {
	handler := newTestHandler(t, testBackends{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader("horizon"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
