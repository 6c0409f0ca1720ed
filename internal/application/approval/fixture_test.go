package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/domain/policy"
	"github.com/garyjia/site-approval/internal/infrastructure/directory"
	"github.com/garyjia/site-approval/internal/infrastructure/persistence/memory"
)

// orgUnits is a single branch: hq > area-n > proj-1 > zone-1 > site-1
var orgUnits = []entity.OrgUnit{
	{ID: "hq", Name: "Head Office"},
	{ID: "area-n", Name: "Northern Area", ParentID: "hq"},
	{ID: "proj-1", Name: "Harbour Bridge", ParentID: "area-n"},
	{ID: "zone-1", Name: "East Pylon", ParentID: "proj-1"},
	{ID: "site-1", Name: "Pylon Footing", ParentID: "zone-1"},
}

var (
	siteEngineer   = entity.User{ID: "se-1", Name: "Sam Reyes", Role: policy.RoleSiteEngineer, OrgUnitID: "site-1"}
	siteEngineer2  = entity.User{ID: "se-2", Name: "Lee Park", Role: policy.RoleSiteEngineer, OrgUnitID: "site-1"}
	zoneManager    = entity.User{ID: "zm-1", Name: "Kim Osei", Role: policy.RoleZoneManager, OrgUnitID: "zone-1"}
	projectManager = entity.User{ID: "pm-1", Name: "Ari Novak", Role: policy.RoleProjectManager, OrgUnitID: "proj-1"}
	areaManager    = entity.User{ID: "am-1", Name: "Dana Wu", Role: policy.RoleAreaManager, OrgUnitID: "area-n"}
	director       = entity.User{ID: "md-1", Name: "Rae Holm", Role: policy.RoleManagingDirector, OrgUnitID: "hq"}
)

func defaultUsers() []entity.User {
	return []entity.User{siteEngineer, siteEngineer2, zoneManager, projectManager, areaManager, director}
}

// stepClock advances one minute on every reading
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// recorder captures published events
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) Publish(_ context.Context, evt *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() *event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	engine    *Engine
	store     *memory.RequestStore
	directory *directory.Static
	events    *recorder
}

func newFixture(t *testing.T, users ...entity.User) *fixture {
	t.Helper()
	if len(users) == 0 {
		users = defaultUsers()
	}

	dir, err := directory.NewStatic(orgUnits, users)
	require.NoError(t, err)

	store := memory.NewRequestStore()
	events := &recorder{}
	engine, err := NewEngine(Config{
		Store:     store,
		Directory: dir,
		Policy:    policy.Default(),
		Publisher: events,
		Logger:    zaptest.NewLogger(t),
		Now:       newStepClock().Now,
	})
	require.NoError(t, err)

	return &fixture{engine: engine, store: store, directory: dir, events: events}
}

func amount(v float64) *float64 {
	return &v
}

// submit creates and submits a request in one go
func (f *fixture) submit(t *testing.T, reqType entity.RequestType, requestorID string, value *float64) *entity.ApprovalRequest {
	t.Helper()
	ctx := context.Background()

	req, err := f.engine.CreateRequest(ctx, reqType, requestorID, RequestInput{
		Title:  "Request from " + requestorID,
		Amount: value,
	})
	require.NoError(t, err)

	req, err = f.engine.SubmitRequest(ctx, req.ID)
	require.NoError(t, err)
	return req
}

func approverIDs(req *entity.ApprovalRequest) []string {
	ids := make([]string, len(req.ApprovalChain))
	for i, s := range req.ApprovalChain {
		ids[i] = s.ApproverID
	}
	return ids
}

// requireIndexInvariant checks the current-approver pointer against the status
func requireIndexInvariant(t *testing.T, req *entity.ApprovalRequest) {
	t.Helper()
	require.GreaterOrEqual(t, req.CurrentApproverIndex, 0)
	require.LessOrEqual(t, req.CurrentApproverIndex, len(req.ApprovalChain))
	if req.Status.IsAwaitingDecision() {
		require.Less(t, req.CurrentApproverIndex, len(req.ApprovalChain))
		require.Equal(t, entity.StepStatusPending, req.ApprovalChain[req.CurrentApproverIndex].Status)
	}
	for i, s := range req.ApprovalChain {
		require.Equal(t, i+1, s.StepNumber)
	}
}
