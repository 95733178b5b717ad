package testutil

import (
	"context"
	"sort"

	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
)

// MockVersionRepository is an in-memory implementation of version.Repository
type MockVersionRepository struct {
	Versions  map[string]*version.Version
	Snapshots map[string]*version.Snapshot
	Current   string

	CommitError error
	GetError    error
	DeleteError error
}

func NewMockVersionRepository() *MockVersionRepository {
	return &MockVersionRepository{
		Versions:  make(map[string]*version.Version),
		Snapshots: make(map[string]*version.Snapshot),
	}
}

func (m *MockVersionRepository) Commit(ctx context.Context, v *version.Version, s *version.Snapshot) error {
	if m.CommitError != nil {
		return m.CommitError
	}
	m.Versions[v.Number] = v
	m.Snapshots[v.Number] = s
	m.Current = v.Number
	return nil
}

func (m *MockVersionRepository) Put(ctx context.Context, v *version.Version, s *version.Snapshot) error {
	if m.CommitError != nil {
		return m.CommitError
	}
	m.Versions[v.Number] = v
	m.Snapshots[v.Number] = s
	return nil
}

func (m *MockVersionRepository) Get(ctx context.Context, number string) (*version.Version, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	v, ok := m.Versions[number]
	if !ok {
		return nil, apperrors.NotFound("Version " + number)
	}
	return v, nil
}

func (m *MockVersionRepository) GetSnapshot(ctx context.Context, number string) (*version.Snapshot, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	s, ok := m.Snapshots[number]
	if !ok {
		return nil, apperrors.NotFound("Snapshot " + number)
	}
	return s, nil
}

func (m *MockVersionRepository) List(ctx context.Context) ([]*version.Version, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	versions := make([]*version.Version, 0, len(m.Versions))
	for _, v := range m.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return version.Compare(versions[i].Number, versions[j].Number) > 0
	})
	return versions, nil
}

func (m *MockVersionRepository) ListByTag(ctx context.Context, tag string) ([]*version.Version, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	tagged := []*version.Version{}
	for _, v := range all {
		if v.HasTag(tag) {
			tagged = append(tagged, v)
		}
	}
	return tagged, nil
}

func (m *MockVersionRepository) Exists(ctx context.Context, number string) (bool, error) {
	_, ok := m.Versions[number]
	return ok, nil
}

func (m *MockVersionRepository) UpdateTags(ctx context.Context, number string, tags []string) error {
	v, ok := m.Versions[number]
	if !ok {
		return apperrors.NotFound("Version " + number)
	}
	v.Tags = tags
	return nil
}

func (m *MockVersionRepository) Delete(ctx context.Context, number string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, ok := m.Versions[number]; !ok {
		return apperrors.NotFound("Version " + number)
	}
	delete(m.Versions, number)
	delete(m.Snapshots, number)
	return nil
}

func (m *MockVersionRepository) CurrentVersion(ctx context.Context) (string, error) {
	if m.Current == "" {
		return "", apperrors.NotFound("Current version")
	}
	return m.Current, nil
}

func (m *MockVersionRepository) SetCurrentVersion(ctx context.Context, number string) error {
	m.Current = number
	return nil
}

// MockRollbackRepository is an in-memory implementation of rollback.Repository
type MockRollbackRepository struct {
	Plans   map[string]*rollback.Plan
	Results map[string]*rollback.Result

	SaveError error
	GetError  error
}

func NewMockRollbackRepository() *MockRollbackRepository {
	return &MockRollbackRepository{
		Plans:   make(map[string]*rollback.Plan),
		Results: make(map[string]*rollback.Result),
	}
}

func (m *MockRollbackRepository) SavePlan(ctx context.Context, plan *rollback.Plan) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Plans[plan.ID] = plan
	return nil
}

func (m *MockRollbackRepository) GetPlan(ctx context.Context, id string) (*rollback.Plan, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	p, ok := m.Plans[id]
	if !ok {
		return nil, apperrors.NotFound("Rollback plan " + id)
	}
	return p, nil
}

func (m *MockRollbackRepository) UpdatePlanStatus(ctx context.Context, id, status string) error {
	p, ok := m.Plans[id]
	if !ok {
		return apperrors.NotFound("Rollback plan " + id)
	}
	p.Status = status
	return nil
}

func (m *MockRollbackRepository) ListPlans(ctx context.Context, limit int) ([]*rollback.Plan, error) {
	plans := make([]*rollback.Plan, 0, len(m.Plans))
	for _, p := range m.Plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	if limit > 0 && len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

func (m *MockRollbackRepository) SaveResult(ctx context.Context, result *rollback.Result) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Results[result.PlanID] = result
	return nil
}

func (m *MockRollbackRepository) GetResult(ctx context.Context, planID string) (*rollback.Result, error) {
	r, ok := m.Results[planID]
	if !ok {
		return nil, apperrors.NotFound("Rollback result for plan " + planID)
	}
	return r, nil
}

// MockConsumerRegistry is a settable consumer-liveness oracle
type MockConsumerRegistry struct {
	Active int
	Err    error
}

func (m *MockConsumerRegistry) ActiveConsumers(ctx context.Context) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Active, nil
}

// MockPrecondition is a precondition with a fixed verdict
type MockPrecondition struct {
	PreName string
	Err     error
	Calls   int
}

func (m *MockPrecondition) Name() string { return m.PreName }

func (m *MockPrecondition) Check(ctx context.Context) error {
	m.Calls++
	return m.Err
}
