package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/apiserver/internal/db"
	"github.com/learnhub/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("learnhub_test"),
		postgres.WithUsername("learnhub"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(dsn))

	conn, err := db.OpenDSN(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPostgresRepositories(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(conn)
	courses := NewCourseRepository(conn)

	owner, err := users.Create(ctx, types.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "h", Role: types.RoleInstructor})
	require.NoError(t, err)
	other, err := users.Create(ctx, types.User{Name: "Bob", Email: "bob@example.com", PasswordHash: "h", Role: types.RoleInstructor})
	require.NoError(t, err)

	t.Run("email is unique", func(t *testing.T) {
		_, err := users.Create(ctx, types.User{Name: "Ada 2", Email: "ada@example.com", PasswordHash: "h", Role: types.RoleLearner})
		assert.ErrorIs(t, err, ErrConflict)
	})

	mk := func(title, description string, price float64, tags ...string) types.Course {
		c, err := courses.Create(ctx, types.Course{
			Title:       title,
			Description: description,
			Instructor:  types.Instructor{ID: owner.ID},
			Price:       price,
			Category:    "programming",
			Tags:        tags,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		return c
	}
	byTitle := mk("Learn Python", "basics", 20)
	byDesc := mk("Scripting", "all about PYTHON scripting", 10)
	byTag := mk("Data", "pandas", 50, "Python")
	cheap := mk("Go", "concurrency", 9.99)
	pricey := mk("Rust", "ownership", 50.01)

	ids := func(cs []types.Course) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	t.Run("query matches title, description and tags", func(t *testing.T) {
		found, err := courses.Search(ctx, types.CourseSearch{Query: "python"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{byTitle.ID, byDesc.ID, byTag.ID}, ids(found))
		assert.Equal(t, "Ada", found[0].Instructor.Name)
	})

	t.Run("price bounds are inclusive", func(t *testing.T) {
		found, err := courses.Search(ctx, types.CourseSearch{MinPrice: float(10), MaxPrice: float(50)})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{byTitle.ID, byDesc.ID, byTag.ID}, ids(found))
		assert.NotContains(t, ids(found), cheap.ID)
		assert.NotContains(t, ids(found), pricey.ID)
	})

	t.Run("detail expands modules in order", func(t *testing.T) {
		m2, m1 := uuid.NewString(), uuid.NewString()
		_, err := conn.ExecContext(ctx, `INSERT INTO course_modules (id, course_id, title, position) VALUES ($1, $3, 'Second', 2), ($2, $3, 'First', 1)`, m2, m1, byTitle.ID)
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, `INSERT INTO lessons (id, module_id, title, position) VALUES ($1, $2, 'Intro', 1)`, uuid.NewString(), m1)
		require.NoError(t, err)

		detail, err := courses.Get(ctx, byTitle.ID)
		require.NoError(t, err)
		require.Len(t, detail.Modules, 2)
		assert.Equal(t, "First", detail.Modules[0].Title)
		assert.Len(t, detail.Modules[0].Lessons, 1)
		assert.Empty(t, detail.Modules[1].Lessons)
	})

	t.Run("mutations require ownership", func(t *testing.T) {
		update := byTag
		update.Title = "Hijacked"
		_, err := courses.UpdateOwned(ctx, other.ID, update)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, courses.DeleteOwned(ctx, byTag.ID, other.ID), ErrNotFound)

		update.Title = "Data Science"
		updated, err := courses.UpdateOwned(ctx, owner.ID, update)
		require.NoError(t, err)
		assert.Equal(t, "Data Science", updated.Title)
		assert.Equal(t, owner.ID, updated.Instructor.ID)

		require.NoError(t, courses.DeleteOwned(ctx, byTag.ID, owner.ID))
		_, err = courses.Get(ctx, byTag.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed ids are not found", func(t *testing.T) {
		_, err := courses.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = users.GetByID(ctx, "42")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
