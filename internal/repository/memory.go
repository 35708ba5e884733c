package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"promptflows/backend/pkg/models"
)

// MemoryStore is an in-process Repository and CounterStore. It backs the
// "memory" database driver and the service tests. Fail arms a one-shot
// error for a named operation.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	projects map[string]models.Project
	steps    map[string][]models.PromptStep
	tags     map[string][]string
	stars    map[string]map[string]time.Time
	comments map[string]models.Comment
	faults   map[string][]error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]models.Profile),
		projects: make(map[string]models.Project),
		steps:    make(map[string][]models.PromptStep),
		tags:     make(map[string][]string),
		stars:    make(map[string]map[string]time.Time),
		comments: make(map[string]models.Comment),
		faults:   make(map[string][]error),
	}
}

// Fail makes the next call to op return err. Calls queue up, so arming the
// same op twice fails its next two calls.
func (m *MemoryStore) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], err)
}

// fault pops an armed error for op. Callers hold the write lock.
func (m *MemoryStore) fault(op string) error {
	queue := m.faults[op]
	if len(queue) == 0 {
		return nil
	}
	m.faults[op] = queue[1:]
	return queue[0]
}

// Ping succeeds unless a fault is armed.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault("Ping")
}

// Projects

func (m *MemoryStore) CreateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateProject"); err != nil {
		return err
	}
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("%w: projects_pkey", ErrConflict)
	}
	for _, existing := range m.projects {
		if existing.Slug == p.Slug {
			return fmt.Errorf("%w: projects_slug_key", ErrConflict)
		}
	}
	if _, ok := m.profiles[p.AuthorID]; !ok {
		return fmt.Errorf("%w: author %s", ErrNotFound, p.AuthorID)
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetProject"); err != nil {
		return nil, err
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetProjectBySlug"); err != nil {
		return nil, err
	}
	for _, p := range m.projects {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListProjectsByAuthor(ctx context.Context, authorID string) ([]models.ProjectSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListProjectsByAuthor"); err != nil {
		return nil, err
	}
	list := []models.ProjectSummary{}
	for _, p := range m.projects {
		if p.AuthorID != authorID {
			continue
		}
		list = append(list, models.ProjectSummary{
			ID:          p.ID,
			Title:       p.Title,
			Slug:        p.Slug,
			IsPublished: p.IsPublished,
			IsApproved:  p.IsApproved,
			StepCount:   len(m.steps[p.ID]),
			UpdatedAt:   p.UpdatedAt,
		})
	}
	slices.SortFunc(list, func(a, b models.ProjectSummary) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
	return list, nil
}

func (m *MemoryStore) UpdateProject(ctx context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("UpdateProject"); err != nil {
		return err
	}
	cur, ok := m.projects[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = p.Title
	cur.Description = p.Description
	cur.Tool = p.Tool
	cur.Category = p.Category
	cur.Difficulty = p.Difficulty
	cur.DemoURL = p.DemoURL
	cur.IsPublished = p.IsPublished
	cur.IsApproved = p.IsApproved
	cur.UpdatedAt = p.UpdatedAt
	m.projects[p.ID] = cur
	return nil
}

func (m *MemoryStore) SetPublished(ctx context.Context, id string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SetPublished"); err != nil {
		return err
	}
	cur, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	cur.IsPublished = published
	cur.UpdatedAt = time.Now().UTC()
	m.projects[id] = cur
	return nil
}

func (m *MemoryStore) TouchProject(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("TouchProject"); err != nil {
		return err
	}
	cur, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	cur.UpdatedAt = at
	m.projects[id] = cur
	return nil
}

func (m *MemoryStore) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteProject"); err != nil {
		return err
	}
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	delete(m.steps, id)
	delete(m.tags, id)
	for _, byProject := range m.stars {
		delete(byProject, id)
	}
	for cid, c := range m.comments {
		if c.ProjectID == id {
			delete(m.comments, cid)
		}
	}
	for pid, p := range m.projects {
		changed := false
		if p.ForkedFromID != nil && *p.ForkedFromID == id {
			p.ForkedFromID = nil
			changed = true
		}
		if p.InspiredByID != nil && *p.InspiredByID == id {
			p.InspiredByID = nil
			changed = true
		}
		if changed {
			m.projects[pid] = p
		}
	}
	return nil
}

func (m *MemoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SlugExists"); err != nil {
		return false, err
	}
	for _, p := range m.projects {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListProjectIDs"); err != nil {
		return nil, err
	}
	all := make([]models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b models.Project) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	return ids, nil
}

// Steps

func (m *MemoryStore) ListSteps(ctx context.Context, projectID string) ([]models.PromptStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListSteps"); err != nil {
		return nil, err
	}
	steps := slices.Clone(m.steps[projectID])
	slices.SortStableFunc(steps, func(a, b models.PromptStep) int {
		return cmp.Or(cmp.Compare(a.StepOrder, b.StepOrder), a.CreatedAt.Compare(b.CreatedAt))
	})
	return steps, nil
}

func (m *MemoryStore) InsertSteps(ctx context.Context, steps []models.PromptStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("InsertSteps"); err != nil {
		return err
	}
	for _, st := range steps {
		if _, ok := m.projects[st.ProjectID]; !ok {
			return fmt.Errorf("%w: project %s", ErrNotFound, st.ProjectID)
		}
		if st.StepOrder <= 0 || st.Title == "" {
			return fmt.Errorf("invalid step %q at order %d", st.Title, st.StepOrder)
		}
	}
	for _, st := range steps {
		m.steps[st.ProjectID] = append(m.steps[st.ProjectID], st)
	}
	return nil
}

func (m *MemoryStore) DeleteSteps(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteSteps"); err != nil {
		return err
	}
	delete(m.steps, projectID)
	return nil
}

func (m *MemoryStore) MaxStepOrder(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("MaxStepOrder"); err != nil {
		return 0, err
	}
	highest := 0
	for _, st := range m.steps[projectID] {
		highest = max(highest, st.StepOrder)
	}
	return highest, nil
}

func (m *MemoryStore) CountSteps(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CountSteps"); err != nil {
		return 0, err
	}
	return len(m.steps[projectID]), nil
}

// Tags

func (m *MemoryStore) ListTags(ctx context.Context, projectID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListTags"); err != nil {
		return nil, err
	}
	tags := slices.Clone(m.tags[projectID])
	slices.Sort(tags)
	return tags, nil
}

func (m *MemoryStore) InsertTags(ctx context.Context, projectID string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("InsertTags"); err != nil {
		return err
	}
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	existing := m.tags[projectID]
	for i, t := range tags {
		if slices.Contains(existing, t) || slices.Contains(tags[:i], t) {
			return fmt.Errorf("%w: project_tags_pkey", ErrConflict)
		}
	}
	m.tags[projectID] = append(existing, tags...)
	return nil
}

func (m *MemoryStore) DeleteTags(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteTags"); err != nil {
		return err
	}
	delete(m.tags, projectID)
	return nil
}

// Stars

func (m *MemoryStore) HasStar(ctx context.Context, userID, projectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("HasStar"); err != nil {
		return false, err
	}
	_, ok := m.stars[userID][projectID]
	return ok, nil
}

func (m *MemoryStore) InsertStar(ctx context.Context, star *models.Star) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("InsertStar"); err != nil {
		return err
	}
	if _, ok := m.projects[star.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, star.ProjectID)
	}
	byProject := m.stars[star.UserID]
	if byProject == nil {
		byProject = make(map[string]time.Time)
		m.stars[star.UserID] = byProject
	}
	if _, ok := byProject[star.ProjectID]; ok {
		return fmt.Errorf("%w: stars_pkey", ErrConflict)
	}
	byProject[star.ProjectID] = star.CreatedAt
	return nil
}

func (m *MemoryStore) DeleteStar(ctx context.Context, userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteStar"); err != nil {
		return err
	}
	if _, ok := m.stars[userID][projectID]; !ok {
		return ErrNotFound
	}
	delete(m.stars[userID], projectID)
	return nil
}

// Comments

func (m *MemoryStore) InsertComment(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("InsertComment"); err != nil {
		return err
	}
	if _, ok := m.projects[c.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, c.ProjectID)
	}
	if c.ParentCommentID != nil {
		if _, ok := m.comments[*c.ParentCommentID]; !ok {
			return fmt.Errorf("%w: parent comment %s", ErrNotFound, *c.ParentCommentID)
		}
	}
	if _, ok := m.comments[c.ID]; ok {
		return fmt.Errorf("%w: comments_pkey", ErrConflict)
	}
	m.comments[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetComment"); err != nil {
		return nil, err
	}
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, projectID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListComments"); err != nil {
		return nil, err
	}
	var out []models.Comment
	for _, c := range m.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b models.Comment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryStore) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteComment"); err != nil {
		return err
	}
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	m.deleteCommentTree(id)
	return nil
}

func (m *MemoryStore) deleteCommentTree(id string) {
	delete(m.comments, id)
	for cid, c := range m.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == id {
			m.deleteCommentTree(cid)
		}
	}
}

func (m *MemoryStore) UnpinAll(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("UnpinAll"); err != nil {
		return err
	}
	for id, c := range m.comments {
		if c.ProjectID == projectID && c.IsPinned {
			c.IsPinned = false
			m.comments[id] = c
		}
	}
	return nil
}

func (m *MemoryStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SetPinned"); err != nil {
		return err
	}
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	if pinned {
		for oid, other := range m.comments {
			if oid != id && other.ProjectID == c.ProjectID && other.IsPinned {
				return fmt.Errorf("%w: comments_one_pin_per_project", ErrConflict)
			}
		}
	}
	c.IsPinned = pinned
	m.comments[id] = c
	return nil
}

// Profiles

func (m *MemoryStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetProfile"); err != nil {
		return nil, err
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateProfile"); err != nil {
		return err
	}
	if _, ok := m.profiles[p.ID]; ok {
		return fmt.Errorf("%w: profiles_pkey", ErrConflict)
	}
	for _, existing := range m.profiles {
		if existing.Username == p.Username {
			return fmt.Errorf("%w: profiles_username_key", ErrConflict)
		}
	}
	m.profiles[p.ID] = *p
	return nil
}

// Counters

func (m *MemoryStore) GetCounters(ctx context.Context, projectID string) (models.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetCounters"); err != nil {
		return models.Counters{}, err
	}
	p, ok := m.projects[projectID]
	if !ok {
		return models.Counters{}, ErrNotFound
	}
	return models.Counters{StarCount: p.StarCount, ForkCount: p.ForkCount, CommentCount: p.CommentCount}, nil
}

func (m *MemoryStore) SetCounter(ctx context.Context, projectID string, field models.CounterField, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SetCounter"); err != nil {
		return err
	}
	p, ok := m.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	slot, err := counterSlot(&p, field)
	if err != nil {
		return err
	}
	if value < 0 {
		return fmt.Errorf("counter %s cannot be negative", field)
	}
	*slot = value
	m.projects[projectID] = p
	return nil
}

func (m *MemoryStore) AddCounter(ctx context.Context, projectID string, field models.CounterField, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("AddCounter"); err != nil {
		return 0, err
	}
	p, ok := m.projects[projectID]
	if !ok {
		return 0, ErrNotFound
	}
	slot, err := counterSlot(&p, field)
	if err != nil {
		return 0, err
	}
	*slot = max(*slot+delta, 0)
	m.projects[projectID] = p
	return *slot, nil
}

func (m *MemoryStore) CountStars(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CountStars"); err != nil {
		return 0, err
	}
	n := 0
	for _, byProject := range m.stars {
		if _, ok := byProject[projectID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountForks(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CountForks"); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range m.projects {
		if p.ForkedFromID != nil && *p.ForkedFromID == projectID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountComments(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CountComments"); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range m.comments {
		if c.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func counterSlot(p *models.Project, field models.CounterField) (*int, error) {
	switch field {
	case models.CounterStars:
		return &p.StarCount, nil
	case models.CounterForks:
		return &p.ForkCount, nil
	case models.CounterComments:
		return &p.CommentCount, nil
	default:
		return nil, fmt.Errorf("unknown counter %q", field)
	}
}
