package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/storage"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/types"
)

// CourseRepository defines persistence operations for courses. Read paths
// return the instructor expanded.
type CourseRepository interface {
	Search(ctx context.Context, filter types.CourseSearch) ([]types.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]types.Course, error)
	Get(ctx context.Context, id string) (types.CourseDetail, error)
	Create(ctx context.Context, course types.Course) (types.Course, error)
	UpdateOwned(ctx context.Context, instructorID string, course types.Course) (types.Course, error)
	DeleteOwned(ctx context.Context, id, instructorID string) error
}

// CourseCache holds course details between reads.
type CourseCache interface {
	Get(ctx context.Context, id string) (types.CourseDetail, bool, error)
	Set(ctx context.Context, detail types.CourseDetail) error
	Invalidate(ctx context.Context, id string) error
}

// CourseInput carries the editable course fields. Image, when set, is
// uploaded and replaces ThumbnailImage.
type CourseInput struct {
	Title          string
	Description    string
	Price          float64
	Category       string
	ThumbnailImage string
	Tags           []string
	Image          *types.FileUpload
}

// CourseService encapsulates course use-cases.
type CourseService struct {
	repo         CourseRepository
	objects      ObjectStore
	cache        CourseCache
	events       events.Publisher
	log          *logger.Logger
	defaultThumb string
}

// NewCourseService builds the service. cache may be nil.
func NewCourseService(
	repo CourseRepository,
	objects ObjectStore,
	cache CourseCache,
	publisher events.Publisher,
	log *logger.Logger,
	defaultThumb string,
) *CourseService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &CourseService{
		repo:         repo,
		objects:      objects,
		cache:        cache,
		events:       publisher,
		log:          log.With("service", "course"),
		defaultThumb: defaultThumb,
	}
}

func validPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return fmt.Errorf("%w: price must be a non-negative number", ErrInvalidInput)
	}
	return nil
}

// Create stores a course owned by instructorID. Without an image the
// default thumbnail is used.
func (s *CourseService) Create(ctx context.Context, instructorID string, in CourseInput) (types.Course, error) {
	if err := validPrice(in.Price); err != nil {
		return types.Course{}, err
	}

	course := types.Course{
		Title:          in.Title,
		Description:    in.Description,
		Instructor:     types.Instructor{ID: instructorID},
		Price:          in.Price,
		Category:       in.Category,
		ThumbnailImage: s.defaultThumb,
		Tags:           in.Tags,
	}

	var uploaded *storage.Object
	if in.Image != nil {
		obj, err := s.objects.Upload(ctx, storage.ThumbnailPrefix, *in.Image)
		if err != nil {
			return types.Course{}, fmt.Errorf("upload thumbnail: %w", err)
		}
		uploaded = &obj
		course.ThumbnailImage = obj.URL
	}

	created, err := s.repo.Create(ctx, course)
	if err != nil {
		discardUpload(ctx, s.objects, s.log, uploaded)
		return types.Course{}, fmt.Errorf("create course: %w", err)
	}

	publish(ctx, s.log, s.events, events.CourseCreated, events.CoursePayload{
		CourseID:     created.ID,
		InstructorID: instructorID,
		Title:        created.Title,
	})
	return created, nil
}

func (s *CourseService) ListAll(ctx context.Context) ([]types.Course, error) {
	courses, err := s.repo.Search(ctx, types.CourseSearch{})
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// Get returns the course detail, consulting the cache first when configured.
func (s *CourseService) Get(ctx context.Context, id string) (types.CourseDetail, error) {
	if s.cache != nil {
		detail, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("course cache read failed", "course_id", id, "error", err)
		} else if ok {
			return detail, nil
		}
	}

	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.CourseDetail{}, ErrNotFound
		}
		return types.CourseDetail{}, fmt.Errorf("get course: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, detail); err != nil {
			s.log.Warn("course cache write failed", "course_id", id, "error", err)
		}
	}
	return detail, nil
}

// Update overwrites every editable field of a course owned by instructorID.
// Missing and foreign courses both yield ErrNotFoundOrUnauthorized.
func (s *CourseService) Update(ctx context.Context, instructorID, id string, in CourseInput) (types.Course, error) {
	if err := validPrice(in.Price); err != nil {
		return types.Course{}, err
	}

	course := types.Course{
		ID:             id,
		Title:          in.Title,
		Description:    in.Description,
		Price:          in.Price,
		Category:       in.Category,
		ThumbnailImage: in.ThumbnailImage,
		Tags:           in.Tags,
	}

	var uploaded *storage.Object
	if in.Image != nil {
		// Ownership is checked before anything is uploaded.
		if err := s.checkOwner(ctx, instructorID, id); err != nil {
			return types.Course{}, err
		}
		obj, err := s.objects.Upload(ctx, storage.ThumbnailPrefix, *in.Image)
		if err != nil {
			return types.Course{}, fmt.Errorf("upload thumbnail: %w", err)
		}
		uploaded = &obj
		course.ThumbnailImage = obj.URL
	}

	updated, err := s.repo.UpdateOwned(ctx, instructorID, course)
	if err != nil {
		discardUpload(ctx, s.objects, s.log, uploaded)
		if errors.Is(err, store.ErrNotFound) {
			return types.Course{}, ErrNotFoundOrUnauthorized
		}
		return types.Course{}, fmt.Errorf("update course: %w", err)
	}

	s.invalidate(ctx, id)
	publish(ctx, s.log, s.events, events.CourseUpdated, events.CoursePayload{
		CourseID:     id,
		InstructorID: instructorID,
		Title:        updated.Title,
	})
	return updated, nil
}

func (s *CourseService) checkOwner(ctx context.Context, instructorID, id string) error {
	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFoundOrUnauthorized
		}
		return fmt.Errorf("get course: %w", err)
	}
	if detail.Instructor.ID != instructorID {
		return ErrNotFoundOrUnauthorized
	}
	return nil
}

// Delete permanently removes a course owned by instructorID.
func (s *CourseService) Delete(ctx context.Context, instructorID, id string) error {
	if err := s.repo.DeleteOwned(ctx, id, instructorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFoundOrUnauthorized
		}
		return fmt.Errorf("delete course: %w", err)
	}

	s.invalidate(ctx, id)
	publish(ctx, s.log, s.events, events.CourseDeleted, events.CoursePayload{
		CourseID:     id,
		InstructorID: instructorID,
	})
	return nil
}

func (s *CourseService) ListByInstructor(ctx context.Context, instructorID string) ([]types.Course, error) {
	courses, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("list instructor courses: %w", err)
	}
	return courses, nil
}

// Search returns the courses matching every present criterion of filter.
func (s *CourseService) Search(ctx context.Context, filter types.CourseSearch) ([]types.Course, error) {
	courses, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search courses: %w", err)
	}
	return courses, nil
}

// InvalidateInstructor drops the cached detail of every course owned by
// instructorID, since each embeds the instructor's profile.
func (s *CourseService) InvalidateInstructor(ctx context.Context, instructorID string) {
	if s.cache == nil {
		return
	}
	courses, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		s.log.Warn("list instructor courses for cache invalidation failed", "instructor_id", instructorID, "error", err)
		return
	}
	for _, course := range courses {
		s.invalidate(ctx, course.ID)
	}
}

func (s *CourseService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("course cache invalidation failed", "course_id", id, "error", err)
	}
}
