// Package memstore keeps users and courses in process memory. It backs local
// development without a database and the service and handler tests.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/types"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]types.User
	emails  map[string]string
	courses map[string]types.Course
	modules map[string][]types.Module
	order   []string
	now     func() time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]types.User),
		emails:  make(map[string]string),
		courses: make(map[string]types.Course),
		modules: make(map[string][]types.Module),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UserRepository     { return &UserRepository{s: s} }
func (s *Store) Courses() *CourseRepository { return &CourseRepository{s: s} }

type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.emails[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return r.s.users[id], nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.emails[user.Email]; taken {
		return types.User{}, store.ErrConflict
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	r.s.emails[user.Email] = user.ID
	return user, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if owner, taken := r.s.emails[user.Email]; taken && owner != user.ID {
		return types.User{}, store.ErrConflict
	}
	delete(r.s.emails, current.Email)
	current.Name = user.Name
	current.Email = user.Email
	current.ProfileImage = user.ProfileImage
	current.UpdatedAt = r.s.now()
	r.s.users[current.ID] = current
	r.s.emails[current.Email] = current.ID
	return current, nil
}

type CourseRepository struct {
	s *Store
}

// expand fills the instructor fields from the users map. Callers hold the lock.
func (s *Store) expand(course types.Course) types.Course {
	if user, ok := s.users[course.Instructor.ID]; ok {
		course.Instructor = types.Instructor{
			ID:           user.ID,
			Name:         user.Name,
			Email:        user.Email,
			Role:         user.Role,
			ProfileImage: user.ProfileImage,
		}
	}
	course.Tags = append([]string{}, course.Tags...)
	return course
}

// Matches reports whether course satisfies every present criterion of filter.
func Matches(course types.Course, filter types.CourseSearch) bool {
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		hit := strings.Contains(strings.ToLower(course.Title), q) ||
			strings.Contains(strings.ToLower(course.Description), q)
		for _, tag := range course.Tags {
			if hit {
				break
			}
			hit = strings.Contains(strings.ToLower(tag), q)
		}
		if !hit {
			return false
		}
	}
	if filter.Category != "" && course.Category != filter.Category {
		return false
	}
	if filter.MinPrice != nil && course.Price < *filter.MinPrice {
		return false
	}
	if filter.MaxPrice != nil && course.Price > *filter.MaxPrice {
		return false
	}
	return true
}

func (r *CourseRepository) Search(_ context.Context, filter types.CourseSearch) ([]types.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	courses := make([]types.Course, 0)
	for _, id := range r.s.order {
		course := r.s.courses[id]
		if Matches(course, filter) {
			courses = append(courses, r.s.expand(course))
		}
	}
	return courses, nil
}

func (r *CourseRepository) ListByInstructor(_ context.Context, instructorID string) ([]types.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	courses := make([]types.Course, 0)
	for _, id := range r.s.order {
		course := r.s.courses[id]
		if course.Instructor.ID == instructorID {
			courses = append(courses, r.s.expand(course))
		}
	}
	return courses, nil
}

func (r *CourseRepository) Get(_ context.Context, id string) (types.CourseDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	course, ok := r.s.courses[id]
	if !ok {
		return types.CourseDetail{}, store.ErrNotFound
	}
	modules := make([]types.Module, 0, len(r.s.modules[id]))
	for _, m := range r.s.modules[id] {
		m.Lessons = append([]types.Lesson{}, m.Lessons...)
		modules = append(modules, m)
	}
	return types.CourseDetail{Course: r.s.expand(course), Modules: modules}, nil
}

func (r *CourseRepository) Create(_ context.Context, course types.Course) (types.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Tags == nil {
		course.Tags = []string{}
	}
	now := r.s.now()
	course.CreatedAt = now
	course.UpdatedAt = now
	r.s.courses[course.ID] = course
	r.s.order = append(r.s.order, course.ID)
	return r.s.expand(course), nil
}

func (r *CourseRepository) UpdateOwned(_ context.Context, instructorID string, course types.Course) (types.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.courses[course.ID]
	if !ok || current.Instructor.ID != instructorID {
		return types.Course{}, store.ErrNotFound
	}
	current.Title = course.Title
	current.Description = course.Description
	current.Price = course.Price
	current.Category = course.Category
	current.ThumbnailImage = course.ThumbnailImage
	current.Tags = append([]string{}, course.Tags...)
	current.UpdatedAt = r.s.now()
	r.s.courses[current.ID] = current
	return r.s.expand(current), nil
}

func (r *CourseRepository) DeleteOwned(_ context.Context, id, instructorID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.courses[id]
	if !ok || current.Instructor.ID != instructorID {
		return store.ErrNotFound
	}
	delete(r.s.courses, id)
	delete(r.s.modules, id)
	for i, existing := range r.s.order {
		if existing == id {
			r.s.order = append(r.s.order[:i], r.s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetModules replaces the curriculum of a course. Positions follow slice order.
func (r *CourseRepository) SetModules(courseID string, modules []types.Module) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.courses[courseID]; !ok {
		return store.ErrNotFound
	}
	stored := make([]types.Module, 0, len(modules))
	for i, m := range modules {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Position = i
		lessons := make([]types.Lesson, 0, len(m.Lessons))
		for j, l := range m.Lessons {
			if l.ID == "" {
				l.ID = uuid.NewString()
			}
			l.Position = j
			lessons = append(lessons, l)
		}
		m.Lessons = lessons
		stored = append(stored, m)
	}
	r.s.modules[courseID] = stored
	return nil
}
