package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/learnhub/apiserver/internal/auth"
	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/store/memstore"
	"github.com/learnhub/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultThumb = "https://placeholder.test/thumb.jpg"

type courseFixture struct {
	svc     *CourseService
	store   *memstore.Store
	objects *recordingStore
	cache   *mapCache
	events  *recordingPublisher
	owner   types.User
	other   types.User
}

func newCourseFixture(t *testing.T) courseFixture {
	t.Helper()
	s := memstore.New()
	ctx := context.Background()
	owner, err := s.Users().Create(ctx, types.User{Name: "Ada", Email: "ada@example.com", Role: types.RoleInstructor})
	require.NoError(t, err)
	other, err := s.Users().Create(ctx, types.User{Name: "Bob", Email: "bob@example.com", Role: types.RoleInstructor})
	require.NoError(t, err)

	objects := newRecordingStore()
	cache := newMapCache()
	publisher := &recordingPublisher{}
	return courseFixture{
		svc:     NewCourseService(s.Courses(), objects, cache, publisher, logger.Nop(), defaultThumb),
		store:   s,
		objects: objects,
		cache:   cache,
		events:  publisher,
		owner:   owner,
		other:   other,
	}
}

func (f courseFixture) create(t *testing.T, in CourseInput) types.Course {
	t.Helper()
	course, err := f.svc.Create(context.Background(), f.owner.ID, in)
	require.NoError(t, err)
	return course
}

func TestCreateUsesDefaultThumbnail(t *testing.T) {
	f := newCourseFixture(t)

	course := f.create(t, CourseInput{Title: "Go", Price: 20, Category: "programming", Tags: []string{"go"}})

	assert.NotEmpty(t, course.ID)
	assert.Equal(t, defaultThumb, course.ThumbnailImage)
	assert.Equal(t, f.owner.ID, course.Instructor.ID)
	assert.Empty(t, f.objects.uploads)
	assert.Equal(t, []string{events.CourseCreated}, f.events.types())
}

func TestCreateUploadsThumbnail(t *testing.T) {
	f := newCourseFixture(t)

	course := f.create(t, CourseInput{
		Title: "Go",
		Image: &types.FileUpload{Filename: "cover.jpg", ContentType: "image/jpeg", Data: []byte("jpg")},
	})

	require.Len(t, f.objects.uploads, 1)
	assert.True(t, strings.HasPrefix(f.objects.uploads[0].Key, "course/"))
	assert.Equal(t, f.objects.uploads[0].URL, course.ThumbnailImage)
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	f := newCourseFixture(t)

	_, err := f.svc.Create(context.Background(), f.owner.ID, CourseInput{Title: "Go", Price: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateFailureRemovesThumbnail(t *testing.T) {
	f := newCourseFixture(t)
	svc := NewCourseService(brokenCourses{f.store.Courses()}, f.objects, nil, nil, logger.Nop(), defaultThumb)

	_, err := svc.Create(context.Background(), f.owner.ID, CourseInput{
		Title: "Go",
		Image: &types.FileUpload{Filename: "cover.jpg", Data: []byte("jpg")},
	})

	assert.ErrorIs(t, err, errDatabaseDown)
	require.Len(t, f.objects.uploads, 1)
	assert.Equal(t, []string{f.objects.uploads[0].Key}, f.objects.deletes)
}

func TestCreateUploadFailure(t *testing.T) {
	f := newCourseFixture(t)
	f.objects.uploadErr = errors.New("bucket gone")

	_, err := f.svc.Create(context.Background(), f.owner.ID, CourseInput{
		Title: "Go",
		Image: &types.FileUpload{Filename: "cover.jpg", Data: []byte("jpg")},
	})
	assert.ErrorContains(t, err, "bucket gone")

	all, err := f.svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListAllExpandsInstructor(t *testing.T) {
	f := newCourseFixture(t)
	f.create(t, CourseInput{Title: "Go"})
	f.create(t, CourseInput{Title: "Rust"})

	all, err := f.svc.ListAll(context.Background())
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, "Go", all[0].Title)
	assert.Equal(t, "Ada", all[0].Instructor.Name)
	assert.Equal(t, "ada@example.com", all[0].Instructor.Email)
	assert.Equal(t, types.RoleInstructor, all[0].Instructor.Role)
}

func TestGetReturnsDetailAndCaches(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go"})
	require.NoError(t, f.store.Courses().SetModules(course.ID, []types.Module{
		{Title: "Basics", Lessons: []types.Lesson{{Title: "Hello"}}},
	}))

	detail, err := f.svc.Get(context.Background(), course.ID)
	require.NoError(t, err)
	require.Len(t, detail.Modules, 1)
	assert.Equal(t, "Hello", detail.Modules[0].Lessons[0].Title)
	assert.Equal(t, "Ada", detail.Instructor.Name)
	assert.Contains(t, f.cache.items, course.ID)

	f.cache.items[course.ID] = types.CourseDetail{Course: types.Course{ID: course.ID, Title: "cached"}}
	detail, err = f.svc.Get(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached", detail.Title)
}

func TestGetIgnoresCacheFailure(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go"})
	f.cache.err = errors.New("redis down")

	detail, err := f.svc.Get(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", detail.Title)
	assert.NotNil(t, detail.Modules)
}

func TestGetMissingCourse(t *testing.T) {
	f := newCourseFixture(t)

	_, err := f.svc.Get(context.Background(), "not-a-real-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOverwritesEveryField(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go", Description: "desc", Price: 20, Category: "programming", Tags: []string{"go"}})
	f.cache.items[course.ID] = types.CourseDetail{Course: course}

	updated, err := f.svc.Update(context.Background(), f.owner.ID, course.ID, CourseInput{Title: "Go 2"})
	require.NoError(t, err)

	assert.Equal(t, "Go 2", updated.Title)
	assert.Empty(t, updated.Description)
	assert.Zero(t, updated.Price)
	assert.Empty(t, updated.Category)
	assert.Empty(t, updated.ThumbnailImage)
	assert.Empty(t, updated.Tags)
	assert.Equal(t, "Ada", updated.Instructor.Name)
	assert.Equal(t, []string{course.ID}, f.cache.invalidated)
	assert.Equal(t, []string{events.CourseCreated, events.CourseUpdated}, f.events.types())
}

func TestUpdateWithThumbnailFile(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go"})

	updated, err := f.svc.Update(context.Background(), f.owner.ID, course.ID, CourseInput{
		Title:          "Go",
		ThumbnailImage: "https://ignored.test/x.png",
		Image:          &types.FileUpload{Filename: "new.png", Data: []byte("png")},
	})
	require.NoError(t, err)

	require.Len(t, f.objects.uploads, 1)
	assert.Equal(t, f.objects.uploads[0].URL, updated.ThumbnailImage)
}

func TestUpdateRequiresOwnership(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go"})

	_, foreign := f.svc.Update(context.Background(), f.other.ID, course.ID, CourseInput{
		Title: "Hijacked",
		Image: &types.FileUpload{Filename: "x.png", Data: []byte("png")},
	})
	_, missing := f.svc.Update(context.Background(), f.owner.ID, "missing", CourseInput{Title: "Nope"})

	assert.ErrorIs(t, foreign, ErrNotFoundOrUnauthorized)
	assert.ErrorIs(t, missing, ErrNotFoundOrUnauthorized)
	assert.Empty(t, f.objects.uploads)

	detail, err := f.svc.Get(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", detail.Title)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	f := newCourseFixture(t)
	course := f.create(t, CourseInput{Title: "Go"})

	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.other.ID, course.ID), ErrNotFoundOrUnauthorized)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.owner.ID, "missing"), ErrNotFoundOrUnauthorized)

	require.NoError(t, f.svc.Delete(context.Background(), f.owner.ID, course.ID))
	_, err := f.svc.Get(context.Background(), course.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.cache.invalidated, course.ID)
	assert.Equal(t, []string{events.CourseCreated, events.CourseDeleted}, f.events.types())
}

func TestListByInstructor(t *testing.T) {
	f := newCourseFixture(t)
	f.create(t, CourseInput{Title: "Mine"})
	_, err := f.svc.Create(context.Background(), f.other.ID, CourseInput{Title: "Theirs"})
	require.NoError(t, err)

	mine, err := f.svc.ListByInstructor(context.Background(), f.owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)

	none, err := f.svc.ListByInstructor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchMatchesTitleDescriptionOrTag(t *testing.T) {
	f := newCourseFixture(t)
	f.create(t, CourseInput{Title: "Intro to Python", Category: "programming"})
	f.create(t, CourseInput{Title: "Data Science", Description: "Uses PYTHON heavily", Category: "data"})
	f.create(t, CourseInput{Title: "Scripting", Tags: []string{"python3"}, Category: "programming"})
	f.create(t, CourseInput{Title: "Go", Category: "programming"})

	found, err := f.svc.Search(context.Background(), types.CourseSearch{Query: "python"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro to Python", "Data Science", "Scripting"}, titles(found))

	found, err = f.svc.Search(context.Background(), types.CourseSearch{Query: "python", Category: "programming"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro to Python", "Scripting"}, titles(found))
}

func TestSearchPriceBoundsAreInclusive(t *testing.T) {
	f := newCourseFixture(t)
	for _, price := range []float64{9.99, 10, 30, 50, 50.01} {
		f.create(t, CourseInput{Title: "c", Price: price})
	}
	minPrice, maxPrice := 10.0, 50.0

	found, err := f.svc.Search(context.Background(), types.CourseSearch{MinPrice: &minPrice, MaxPrice: &maxPrice})
	require.NoError(t, err)

	var prices []float64
	for _, c := range found {
		prices = append(prices, c.Price)
	}
	assert.Equal(t, []float64{10, 30, 50}, prices)
}

func titles(courses []types.Course) []string {
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.Title)
	}
	return out
}

func TestProfileUpdateInvalidatesInstructorCourses(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	mine := f.create(t, CourseInput{Title: "Go"})
	theirs, err := f.svc.Create(ctx, f.other.ID, CourseInput{Title: "Rust"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, mine.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, theirs.ID)
	require.NoError(t, err)
	require.Contains(t, f.cache.items, mine.ID)

	users := NewUserService(f.store.Users(), f.objects, auth.NewTokenManager("secret", time.Hour), nil, logger.Nop())
	users.SetInstructorCache(f.svc)
	_, err = users.UpdateProfile(ctx, f.owner.ID, ProfileInput{Name: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.NotContains(t, f.cache.items, mine.ID)
	assert.Contains(t, f.cache.items, theirs.ID)

	detail, err := f.svc.Get(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", detail.Instructor.Name)
}
