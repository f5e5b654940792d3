package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/apiserver/types"
	"github.com/lib/pq"
)

// CourseRepository handles persistence for courses and their modules.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseSelect = `
		SELECT c.id, c.title, c.description, c.price, c.category, c.thumbnail_image, c.tags,
		       c.created_at, c.updated_at,
		       u.id, u.name, u.email, u.role, u.profile_image
		FROM courses c
		JOIN users u ON u.id = c.instructor_id`

func scanCourse(row interface{ Scan(...any) error }) (types.Course, error) {
	var course types.Course
	var profileImage sql.NullString
	err := row.Scan(
		&course.ID,
		&course.Title,
		&course.Description,
		&course.Price,
		&course.Category,
		&course.ThumbnailImage,
		pq.Array(&course.Tags),
		&course.CreatedAt,
		&course.UpdatedAt,
		&course.Instructor.ID,
		&course.Instructor.Name,
		&course.Instructor.Email,
		&course.Instructor.Role,
		&profileImage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, ErrNotFound
		}
		return types.Course{}, err
	}
	if course.Tags == nil {
		course.Tags = []string{}
	}
	if profileImage.Valid {
		course.Instructor.ProfileImage = &profileImage.String
	}
	return course, nil
}

// buildCourseQuery renders the summary select with every present filter ANDed.
// instructorID, when set, restricts the result to that owner.
func buildCourseQuery(filter types.CourseSearch, instructorID string) (string, []any) {
	var conds []string
	var args []any
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if instructorID != "" {
		conds = append(conds, "c.instructor_id = "+next(instructorID))
	}
	if filter.Query != "" {
		p := next("%" + escapeLike(filter.Query) + "%")
		conds = append(conds, fmt.Sprintf(
			`(c.title ILIKE %[1]s ESCAPE '\' OR c.description ILIKE %[1]s ESCAPE '\' `+
				`OR EXISTS (SELECT 1 FROM unnest(c.tags) AS tag WHERE tag ILIKE %[1]s ESCAPE '\'))`, p))
	}
	if filter.Category != "" {
		conds = append(conds, "c.category = "+next(filter.Category))
	}
	if filter.MinPrice != nil {
		conds = append(conds, "c.price >= "+next(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conds = append(conds, "c.price <= "+next(*filter.MaxPrice))
	}

	query := courseSelect
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY c.created_at, c.id"
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *CourseRepository) list(ctx context.Context, filter types.CourseSearch, instructorID string) ([]types.Course, error) {
	query, args := buildCourseQuery(filter, instructorID)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return courses, nil
}

// Search returns the summary view of every course matching filter.
func (r *CourseRepository) Search(ctx context.Context, filter types.CourseSearch) ([]types.Course, error) {
	return r.list(ctx, filter, "")
}

// ListByInstructor returns the summary view of every course owned by instructorID.
func (r *CourseRepository) ListByInstructor(ctx context.Context, instructorID string) ([]types.Course, error) {
	if !validID(instructorID) {
		return []types.Course{}, nil
	}
	return r.list(ctx, types.CourseSearch{}, instructorID)
}

func (r *CourseRepository) getSummary(ctx context.Context, id string) (types.Course, error) {
	if !validID(id) {
		return types.Course{}, ErrNotFound
	}
	return scanCourse(r.db.QueryRowContext(ctx, courseSelect+"\n\t\tWHERE c.id = $1", id))
}

// Get returns the course with its modules and lessons expanded in order.
func (r *CourseRepository) Get(ctx context.Context, id string) (types.CourseDetail, error) {
	course, err := r.getSummary(ctx, id)
	if err != nil {
		return types.CourseDetail{}, err
	}
	modules, err := r.modules(ctx, id)
	if err != nil {
		return types.CourseDetail{}, err
	}
	return types.CourseDetail{Course: course, Modules: modules}, nil
}

func (r *CourseRepository) modules(ctx context.Context, courseID string) ([]types.Module, error) {
	const moduleQuery = `
		SELECT id, title, position
		FROM course_modules
		WHERE course_id = $1
		ORDER BY position, id`
	rows, err := r.db.QueryContext(ctx, moduleQuery, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modules := make([]types.Module, 0)
	index := make(map[string]int)
	ids := make([]string, 0)
	for rows.Next() {
		module := types.Module{Lessons: []types.Lesson{}}
		if err := rows.Scan(&module.ID, &module.Title, &module.Position); err != nil {
			return nil, err
		}
		index[module.ID] = len(modules)
		ids = append(ids, module.ID)
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return modules, nil
	}

	const lessonQuery = `
		SELECT id, module_id, title, content, video_url, position
		FROM lessons
		WHERE module_id = ANY($1)
		ORDER BY position, id`
	lessonRows, err := r.db.QueryContext(ctx, lessonQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer lessonRows.Close()

	for lessonRows.Next() {
		var lesson types.Lesson
		var moduleID string
		if err := lessonRows.Scan(&lesson.ID, &moduleID, &lesson.Title, &lesson.Content, &lesson.VideoURL, &lesson.Position); err != nil {
			return nil, err
		}
		if i, ok := index[moduleID]; ok {
			modules[i].Lessons = append(modules[i].Lessons, lesson)
		}
	}
	if err := lessonRows.Err(); err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *CourseRepository) Create(ctx context.Context, course types.Course) (types.Course, error) {
	now := time.Now().UTC()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Tags == nil {
		course.Tags = []string{}
	}
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `
		INSERT INTO courses (id, title, description, instructor_id, price, category, thumbnail_image, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		course.ID,
		course.Title,
		course.Description,
		course.Instructor.ID,
		course.Price,
		course.Category,
		course.ThumbnailImage,
		pq.Array(course.Tags),
		course.CreatedAt,
		course.UpdatedAt,
	); err != nil {
		return types.Course{}, err
	}
	return course, nil
}

// UpdateOwned overwrites the editable fields of a course owned by instructorID.
// It returns ErrNotFound when no course has that id and owner.
func (r *CourseRepository) UpdateOwned(ctx context.Context, instructorID string, course types.Course) (types.Course, error) {
	if !validID(course.ID) || !validID(instructorID) {
		return types.Course{}, ErrNotFound
	}
	if course.Tags == nil {
		course.Tags = []string{}
	}

	const query = `
		UPDATE courses
		SET title = $1,
			description = $2,
			price = $3,
			category = $4,
			thumbnail_image = $5,
			tags = $6,
			updated_at = $7
		WHERE id = $8 AND instructor_id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		course.Title,
		course.Description,
		course.Price,
		course.Category,
		course.ThumbnailImage,
		pq.Array(course.Tags),
		time.Now().UTC(),
		course.ID,
		instructorID,
	)
	if err != nil {
		return types.Course{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Course{}, err
	}
	if affected == 0 {
		return types.Course{}, ErrNotFound
	}
	return r.getSummary(ctx, course.ID)
}

// DeleteOwned removes a course owned by instructorID.
// It returns ErrNotFound when no course has that id and owner.
func (r *CourseRepository) DeleteOwned(ctx context.Context, id, instructorID string) error {
	if !validID(id) || !validID(instructorID) {
		return ErrNotFound
	}
	const query = `DELETE FROM courses WHERE id = $1 AND instructor_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, instructorID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
