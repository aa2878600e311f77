package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/milestone"
	"milestone-service/internal/service/payment"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/util"
)

type fakeStore struct {
	mu         sync.Mutex
	milestones map[int]*model.Milestone
	nextID     int
}

func newFakeStore(ms ...*model.Milestone) *fakeStore {
	s := &fakeStore{milestones: make(map[int]*model.Milestone)}
	for _, m := range ms {
		s.milestones[m.ID] = m
		if m.ID > s.nextID {
			s.nextID = m.ID
		}
	}
	return s
}

func (s *fakeStore) Create(ctx context.Context, m *model.Milestone, build func(id int) []outbox.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.milestones[m.ID] = m
	return m.ID, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Milestone
	for i := 1; i <= s.nextID; i++ {
		if m, ok := s.milestones[i]; ok && m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) Mutate(ctx context.Context, id int, fn func(m *model.Milestone) ([]outbox.Message, error)) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	if _, err := fn(&cp); err != nil {
		return nil, err
	}
	s.milestones[id] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) AttachPhoto(ctx context.Context, photo *model.Photo, msgs ...outbox.Message) (int, error) {
	photo.ID = 1
	return 1, nil
}

type fakeBlobs struct{}

func (fakeBlobs) PutObject(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	return "https://blobs.example/" + name, nil
}

type fakeProcessor struct {
	err error
}

func (p *fakeProcessor) InitiateTransfer(ctx context.Context, req payment.TransferRequest) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "txn_1", nil
}

func (p *fakeProcessor) QueryTransferStatus(ctx context.Context, ref string) (string, error) {
	return "succeeded", nil
}

type fakeProjects struct{}

func (fakeProjects) GetByID(ctx context.Context, id int) (*model.Project, error) {
	return &model.Project{
		ID:                  id,
		ContractorAccountID: "acct_c",
		HomeownerAccountID:  "acct_h",
		ContractorUserID:    9,
		PlatformFeeBps:      250,
	}, nil
}

func newTestRouter(store *fakeStore, proc *fakeProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	locks := util.NewKeyedMutex()

	svc := milestone.NewService(store, fakeBlobs{}, locks, log)
	gate := payment.NewGate(store, fakeProjects{}, proc, locks, log)
	projection := payment.NewProjectionService(store, proc, log)

	mh := NewMilestoneHandler(svc, log)
	ph := NewPaymentHandler(gate, projection, log)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("actor", "homeowner")
		c.Next()
	})
	r.POST("/projects/:projectId/milestones", mh.CreateMilestone)
	r.GET("/projects/:projectId/milestones", mh.ListMilestones)
	r.GET("/milestones/:id", mh.GetMilestone)
	r.PATCH("/milestones/:id", mh.EditMilestone)
	r.POST("/milestones/:id/complete", mh.MarkComplete)
	r.POST("/milestones/:id/approve", mh.Approve)
	r.POST("/milestones/:id/release", ph.ReleasePayment)
	r.GET("/projects/:projectId/payments", ph.ListPaymentRequests)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateMilestoneEndpoint(t *testing.T) {
	r := newTestRouter(newFakeStore(), &fakeProcessor{})

	w := doJSON(t, r, http.MethodPost, "/projects/7/milestones", gin.H{
		"title":    "Foundation",
		"amount":   15000,
		"due_date": "2024-02-15T00:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", w.Code, w.Body.String())
	}
}

func TestCreateMilestoneValidationMapsTo400(t *testing.T) {
	r := newTestRouter(newFakeStore(), &fakeProcessor{})

	w := doJSON(t, r, http.MethodPost, "/projects/7/milestones", gin.H{"amount": 15000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
}

func TestGetMissingMilestoneMapsTo404(t *testing.T) {
	r := newTestRouter(newFakeStore(), &fakeProcessor{})

	w := doJSON(t, r, http.MethodGet, "/milestones/99", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestIllegalTransitionMapsTo409(t *testing.T) {
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Title: "Framing", Amount: 100_000,
		Status: model.StatusCancelled,
	})
	r := newTestRouter(store, &fakeProcessor{})

	w := doJSON(t, r, http.MethodPost, "/milestones/1/complete", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", w.Code, w.Body.String())
	}
}

func TestEditPaidMilestoneMapsTo409(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Title: "Framing", Amount: 100_000,
		Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true,
		CompletedDate: &now, PaymentReleased: true, TransactionRef: "txn_0", PaidDate: &now,
	})
	r := newTestRouter(store, &fakeProcessor{})

	w := doJSON(t, r, http.MethodPatch, "/milestones/1", gin.H{"amount": 16000})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", w.Code, w.Body.String())
	}
}

func TestReleaseNotReadyMapsTo409(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Title: "Framing", Amount: 100_000,
		Status: model.StatusCompleted, ContractorApproved: true,
		CompletedDate: &now,
	})
	r := newTestRouter(store, &fakeProcessor{})

	w := doJSON(t, r, http.MethodPost, "/milestones/1/release", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", w.Code, w.Body.String())
	}
}

func TestReleaseProcessorFailureMapsTo502(t *testing.T) {
	now := time.Now()
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Title: "Framing", Amount: 100_000,
		Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true,
		CompletedDate: &now,
	})
	r := newTestRouter(store, &fakeProcessor{err: errors.New("payment processor 5xx: 503")})

	w := doJSON(t, r, http.MethodPost, "/milestones/1/release", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502; body = %s", w.Code, w.Body.String())
	}
}

// Full happy path: complete, approve as homeowner, release; the payment view
// then shows the milestone as paid.
func TestApproveThenReleaseFlow(t *testing.T) {
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Title: "Foundation", Amount: 15_000,
		Status: model.StatusPending, ContractorApproved: true,
	})
	r := newTestRouter(store, &fakeProcessor{})

	if w := doJSON(t, r, http.MethodPost, "/milestones/1/complete", nil); w.Code != http.StatusOK {
		t.Fatalf("complete status = %d; body = %s", w.Code, w.Body.String())
	}
	// Release before homeowner approval must refuse.
	if w := doJSON(t, r, http.MethodPost, "/milestones/1/release", nil); w.Code != http.StatusConflict {
		t.Fatalf("premature release status = %d, want 409", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/milestones/1/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve status = %d; body = %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, http.MethodPost, "/milestones/1/release", nil); w.Code != http.StatusOK {
		t.Fatalf("release status = %d; body = %s", w.Code, w.Body.String())
	}

	w := doJSON(t, r, http.MethodGet, "/projects/7/payments", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("payments status = %d", w.Code)
	}
	var resp struct {
		PaymentRequests []model.PaymentRequest `json:"payment_requests"`
		Summary         model.AmountSummary    `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.PaymentRequests) != 1 || resp.PaymentRequests[0].Status != model.PaymentPaid {
		t.Fatalf("payment requests = %+v, want one paid", resp.PaymentRequests)
	}
	if resp.Summary.Paid != 15_000 {
		t.Errorf("summary paid = %d, want 15000", resp.Summary.Paid)
	}
}
