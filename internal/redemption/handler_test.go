package redemption

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pointcard/backend/internal/middleware"
	"github.com/pointcard/backend/internal/models"
)

func businessRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithIdentity(req.Context(), &middleware.Identity{
		AccountID: uuid.New(),
		Type:      models.AccountTypeBusiness,
	}))
}

func TestCreateRewardHandler(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)

	req := businessRequest(http.MethodPost, "/api/v1/rewards",
		`{"name":"Mug","description":"Ceramic","category":"merch","points_required":10,"stock":5}`)
	rr := httptest.NewRecorder()
	h.CreateReward(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
	var created models.Reward
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("response body not JSON: %v", err)
	}
	if created.Name != "Mug" || !created.Active {
		t.Errorf("created reward: got %+v", created)
	}
}

func TestCreateRewardHandler_ValidationErrorBody(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)

	req := businessRequest(http.MethodPost, "/api/v1/rewards",
		`{"name":"Mug","points_required":0,"stock":5}`)
	rr := httptest.NewRecorder()
	h.CreateReward(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	// The body must stay parseable no matter what the validation message
	// contains.
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body not JSON: %v (body: %s)", err, rr.Body.String())
	}
	if resp["error"] == "" {
		t.Error("error body missing the error field")
	}
}
