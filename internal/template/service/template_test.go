package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/repository"
	"github.com/threatdocs/threatdocs-backend/internal/template/validation"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
	"github.com/threatdocs/threatdocs-backend/pkg/testutil"
)

// fakeStore is an in-memory TemplateStore, VersionStore and EdgeStore
type fakeStore struct {
	templates map[string]*domain.Template
	versions  map[string][]*domain.TemplateVersion
	edges     map[string][]*domain.TemplateInheritance
	usage     []usageRecord
}

type usageRecord struct {
	id         string
	successful bool
	elapsed    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: make(map[string]*domain.Template),
		versions:  make(map[string][]*domain.TemplateVersion),
		edges:     make(map[string][]*domain.TemplateInheritance),
	}
}

func (f *fakeStore) Create(_ context.Context, t *domain.Template) error {
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string, includeInactive bool) (*domain.Template, error) {
	t, ok := f.templates[id]
	if !ok || (!includeInactive && !t.IsActive) {
		return nil, nil
	}
	return t, nil
}

func (f *fakeStore) GetByName(_ context.Context, name string) (*domain.Template, error) {
	for _, t := range f.templates {
		if t.IsActive && strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Update(_ context.Context, t *domain.Template, _ []string) error {
	if _, ok := f.templates[t.ID]; !ok {
		return errors.NotFound("template")
	}
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id, _ string) error {
	t, ok := f.templates[id]
	if !ok || !t.IsActive {
		return errors.NotFound("template")
	}
	t.IsActive = false
	return nil
}

func (f *fakeStore) Search(_ context.Context, c repository.SearchCriteria) ([]*domain.Template, error) {
	var out []*domain.Template
	for _, t := range f.templates {
		if !t.IsActive && !c.IncludeInactive {
			continue
		}
		if c.Query != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(c.Query)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) ListActive(_ context.Context) ([]*domain.Template, error) {
	var out []*domain.Template
	for _, t := range f.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordUsage(_ context.Context, id string, successful bool, elapsed time.Duration) error {
	f.usage = append(f.usage, usageRecord{id, successful, elapsed})
	return nil
}

func (f *fakeStore) ListVersions(_ context.Context, lineageID string) ([]*domain.TemplateVersion, error) {
	return f.versions[lineageID], nil
}

func (f *fakeStore) GetVersionByLabel(_ context.Context, lineageID, label string) (*domain.TemplateVersion, error) {
	for _, v := range f.versions[lineageID] {
		if v.VersionLabel == label {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateVersion(_ context.Context, current *domain.Template, label, createdBy string) (*domain.Template, error) {
	next := current.Clone()
	next.Version = label
	f.versions[current.LineageID] = append(f.versions[current.LineageID], &domain.TemplateVersion{
		TemplateID:   current.ID,
		LineageID:    current.LineageID,
		VersionLabel: label,
		IsCurrent:    true,
		CreatedBy:    createdBy,
	})
	return next, nil
}

func (f *fakeStore) Rollback(_ context.Context, t *domain.Template, version *domain.TemplateVersion, _, changedBy string) (*domain.Template, error) {
	restored := t.Clone()
	restored.Version = version.VersionLabel
	restored.LastModifiedBy = changedBy
	f.templates[restored.ID] = restored
	return restored, nil
}

func (f *fakeStore) ListChangeRecords(_ context.Context, _ string) ([]*domain.ChangeRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListParents(_ context.Context, childID string) ([]*domain.TemplateInheritance, error) {
	return f.edges[childID], nil
}

func (f *fakeStore) GetEdge(_ context.Context, childID, parentID string) (*domain.TemplateInheritance, error) {
	for _, e := range f.edges[childID] {
		if e.ParentID == parentID {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateEdge(_ context.Context, e *domain.TemplateInheritance) error {
	f.edges[e.ChildID] = append(f.edges[e.ChildID], e)
	return nil
}

func (f *fakeStore) DeleteEdge(_ context.Context, id string) error {
	for child, list := range f.edges {
		for i, e := range list {
			if e.ID == id {
				f.edges[child] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return errors.NotFound("inheritance link")
}

type invalidatorSpy struct {
	invalidated []string
}

func (i *invalidatorSpy) InvalidateTemplate(_ context.Context, templateID string) error {
	i.invalidated = append(i.invalidated, templateID)
	return nil
}

type serviceHarness struct {
	svc       *TemplateService
	store     *fakeStore
	cache     *invalidatorSpy
	publisher *testutil.MockPublisher
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	store := newFakeStore()
	cache := &invalidatorSpy{}
	publisher := testutil.NewMockPublisher()
	log := testLogger()
	resolver := NewInheritanceResolver(store, store, 5, log)
	v := validation.New(validation.Options{})
	svc := NewTemplateService(store, store, store, cache, resolver, v, publisher, log)
	return &serviceHarness{svc: svc, store: store, cache: cache, publisher: publisher}
}

func TestServiceCreatePublishesEvent(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")

	created, warnings, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "alice", created.CreatedBy)

	h.publisher.AssertEventPublished(t, messaging.EventTemplateCreated)
}

func TestServiceCreateRejectsDuplicateName(t *testing.T) {
	h := newServiceHarness(t)
	_, _, err := h.svc.Create(context.Background(), importableTemplate("Security Exception Request"), "alice")
	require.NoError(t, err)

	_, _, err = h.svc.Create(context.Background(), importableTemplate("security exception request"), "bob")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestServiceCreateCollectsValidationDetails(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Broken")
	tmpl.Fields[0].Patterns = []string{"("}
	tmpl.ConfidenceThreshold = 3

	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.GreaterOrEqual(t, len(appErr.Details), 2)
}

func TestServiceUpdateInvalidatesCache(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	updated := tmpl.Clone()
	updated.Description = "revised"
	_, _, err = h.svc.Update(context.Background(), updated, "bob")
	require.NoError(t, err)

	assert.Contains(t, h.cache.invalidated, tmpl.ID)
	h.publisher.AssertEventPublished(t, messaging.EventTemplateUpdated)
}

func TestServiceUpdateMissingTemplate(t *testing.T) {
	h := newServiceHarness(t)
	_, _, err := h.svc.Update(context.Background(), importableTemplate("Ghost"), "bob")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
}

func TestServiceDeleteIsSoft(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(context.Background(), tmpl.ID, "bob"))

	_, err = h.svc.Get(context.Background(), tmpl.ID, false)
	require.Error(t, err)

	got, err := h.svc.Get(context.Background(), tmpl.ID, true)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	h.publisher.AssertEventPublished(t, messaging.EventTemplateDeleted)
}

func TestServiceCreateVersionRejectsDuplicateLabel(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	_, err = h.svc.CreateVersion(context.Background(), tmpl.ID, "2.0", "alice")
	require.NoError(t, err)
	h.publisher.AssertEventPublished(t, messaging.EventTemplateVersionCreated)

	_, err = h.svc.CreateVersion(context.Background(), tmpl.ID, "2.0", "alice")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestServiceCreateVersionRequiresLabel(t *testing.T) {
	h := newServiceHarness(t)
	_, err := h.svc.CreateVersion(context.Background(), "any", "  ", "alice")
	require.Error(t, err)
}

func TestServiceRollbackUnknownVersion(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	_, err = h.svc.Rollback(context.Background(), tmpl.ID, "9.9", "mistake", "alice")
	require.Error(t, err)
}

func TestServiceRollbackRestoresVersion(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	_, err = h.svc.CreateVersion(context.Background(), tmpl.ID, "2.0", "alice")
	require.NoError(t, err)

	restored, err := h.svc.Rollback(context.Background(), tmpl.ID, "2.0", "regression", "bob")
	require.NoError(t, err)
	assert.Equal(t, "2.0", restored.Version)
	assert.Contains(t, h.cache.invalidated, tmpl.ID)
	h.publisher.AssertEventPublished(t, messaging.EventTemplateRolledBack)
}

func TestServiceAddInheritanceRejectsCycle(t *testing.T) {
	h := newServiceHarness(t)
	parent := importableTemplate("Base Request")
	child := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), parent, "alice")
	require.NoError(t, err)
	_, _, err = h.svc.Create(context.Background(), child, "alice")
	require.NoError(t, err)

	_, err = h.svc.AddInheritance(context.Background(), testutil.NewEdgeFixture(child.ID, parent.ID), "alice")
	require.NoError(t, err)

	_, err = h.svc.AddInheritance(context.Background(), testutil.NewEdgeFixture(parent.ID, child.ID), "alice")
	require.Error(t, err)
}

func TestServiceAddInheritanceUnknownTemplate(t *testing.T) {
	h := newServiceHarness(t)
	child := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), child, "alice")
	require.NoError(t, err)

	_, err = h.svc.AddInheritance(context.Background(), testutil.NewEdgeFixture(child.ID, "missing"), "alice")
	require.Error(t, err)
}

func TestServiceRecordUsageDelegates(t *testing.T) {
	h := newServiceHarness(t)
	require.NoError(t, h.svc.RecordUsage(context.Background(), "tmpl-1", true, 120*time.Millisecond))

	require.Len(t, h.store.usage, 1)
	assert.Equal(t, "tmpl-1", h.store.usage[0].id)
	assert.True(t, h.store.usage[0].successful)
}

func TestServiceSearchClampsLimit(t *testing.T) {
	h := newServiceHarness(t)
	tmpl := importableTemplate("Security Exception Request")
	_, _, err := h.svc.Create(context.Background(), tmpl, "alice")
	require.NoError(t, err)

	got, err := h.svc.Search(context.Background(), repository.SearchCriteria{Query: "exception", Limit: -1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
