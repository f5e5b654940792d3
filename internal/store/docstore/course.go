package docstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type courseDocument struct {
	ID             string    `bson:"_id"`
	Title          string    `bson:"title"`
	Description    string    `bson:"description"`
	Instructor     string    `bson:"instructor"`
	Price          float64   `bson:"price"`
	Category       string    `bson:"category"`
	ThumbnailImage string    `bson:"thumbnailImage"`
	Tags           []string  `bson:"tags"`
	Modules        []string  `bson:"modules"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

// courseView is a course joined with its instructor by the lookup stage.
type courseView struct {
	courseDocument `bson:",inline"`
	InstructorDoc  userDocument `bson:"instructorDoc"`
}

func (v courseView) toCourse() types.Course {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return types.Course{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Instructor: types.Instructor{
			ID:           v.InstructorDoc.ID,
			Name:         v.InstructorDoc.Name,
			Email:        v.InstructorDoc.Email,
			Role:         v.InstructorDoc.Role,
			ProfileImage: v.InstructorDoc.ProfileImage,
		},
		Price:          v.Price,
		Category:       v.Category,
		ThumbnailImage: v.ThumbnailImage,
		Tags:           tags,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

type moduleDocument struct {
	ID      string   `bson:"_id"`
	Title   string   `bson:"title"`
	Lessons []string `bson:"lessons"`
}

type lessonDocument struct {
	ID       string `bson:"_id"`
	Title    string `bson:"title"`
	Content  string `bson:"content"`
	VideoURL string `bson:"videoUrl,omitempty"`
}

// CourseRepository handles persistence for courses. Modules and lessons live in
// their own collections and are referenced by id in display order.
type CourseRepository struct {
	courses *mongo.Collection
	modules *mongo.Collection
	lessons *mongo.Collection
}

func NewCourseRepository(db *mongo.Database) *CourseRepository {
	return &CourseRepository{
		courses: db.Collection(coursesCollection),
		modules: db.Collection(modulesCollection),
		lessons: db.Collection(lessonsCollection),
	}
}

// searchFilter ANDs every present criterion. The query matches title,
// description or any tag as a literal case-insensitive substring.
func searchFilter(filter types.CourseSearch, instructorID string) bson.M {
	match := bson.M{}
	if instructorID != "" {
		match["instructor"] = instructorID
	}
	if filter.Query != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Query), Options: "i"}
		match["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}
	if filter.Category != "" {
		match["category"] = filter.Category
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		price := bson.M{}
		if filter.MinPrice != nil {
			price["$gte"] = *filter.MinPrice
		}
		if filter.MaxPrice != nil {
			price["$lte"] = *filter.MaxPrice
		}
		match["price"] = price
	}
	return match
}

func summaryPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "instructor"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "instructorDoc"},
		}}},
		{{Key: "$unwind", Value: "$instructorDoc"}},
		{{Key: "$project", Value: bson.D{{Key: "instructorDoc.password", Value: 0}}}},
	}
}

func (r *CourseRepository) aggregate(ctx context.Context, match bson.M) ([]courseView, error) {
	cursor, err := r.courses.Aggregate(ctx, summaryPipeline(match))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	views := make([]courseView, 0)
	if err := cursor.All(ctx, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (r *CourseRepository) list(ctx context.Context, match bson.M) ([]types.Course, error) {
	views, err := r.aggregate(ctx, match)
	if err != nil {
		return nil, err
	}
	courses := make([]types.Course, 0, len(views))
	for _, v := range views {
		courses = append(courses, v.toCourse())
	}
	return courses, nil
}

func (r *CourseRepository) Search(ctx context.Context, filter types.CourseSearch) ([]types.Course, error) {
	return r.list(ctx, searchFilter(filter, ""))
}

func (r *CourseRepository) ListByInstructor(ctx context.Context, instructorID string) ([]types.Course, error) {
	return r.list(ctx, searchFilter(types.CourseSearch{}, instructorID))
}

func (r *CourseRepository) getView(ctx context.Context, id string) (courseView, error) {
	views, err := r.aggregate(ctx, bson.M{"_id": id})
	if err != nil {
		return courseView{}, err
	}
	if len(views) == 0 {
		return courseView{}, store.ErrNotFound
	}
	return views[0], nil
}

// Get returns the course with its modules and lessons in reference order.
func (r *CourseRepository) Get(ctx context.Context, id string) (types.CourseDetail, error) {
	view, err := r.getView(ctx, id)
	if err != nil {
		return types.CourseDetail{}, err
	}

	modules := make([]types.Module, 0, len(view.Modules))
	if len(view.Modules) > 0 {
		var moduleDocs []moduleDocument
		if err := r.findByIDs(ctx, r.modules, view.Modules, &moduleDocs); err != nil {
			return types.CourseDetail{}, err
		}
		byID := make(map[string]moduleDocument, len(moduleDocs))
		var lessonIDs []string
		for _, m := range moduleDocs {
			byID[m.ID] = m
			lessonIDs = append(lessonIDs, m.Lessons...)
		}

		lessons := make(map[string]lessonDocument)
		if len(lessonIDs) > 0 {
			var lessonDocs []lessonDocument
			if err := r.findByIDs(ctx, r.lessons, lessonIDs, &lessonDocs); err != nil {
				return types.CourseDetail{}, err
			}
			for _, l := range lessonDocs {
				lessons[l.ID] = l
			}
		}

		for _, moduleID := range view.Modules {
			m, ok := byID[moduleID]
			if !ok {
				continue
			}
			module := types.Module{ID: m.ID, Title: m.Title, Position: len(modules), Lessons: []types.Lesson{}}
			for _, lessonID := range m.Lessons {
				l, ok := lessons[lessonID]
				if !ok {
					continue
				}
				module.Lessons = append(module.Lessons, types.Lesson{
					ID:       l.ID,
					Title:    l.Title,
					Content:  l.Content,
					VideoURL: l.VideoURL,
					Position: len(module.Lessons),
				})
			}
			modules = append(modules, module)
		}
	}

	return types.CourseDetail{Course: view.toCourse(), Modules: modules}, nil
}

func (r *CourseRepository) findByIDs(ctx context.Context, coll *mongo.Collection, ids []string, out any) error {
	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
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

	_, err := r.courses.InsertOne(ctx, courseDocument{
		ID:             course.ID,
		Title:          course.Title,
		Description:    course.Description,
		Instructor:     course.Instructor.ID,
		Price:          course.Price,
		Category:       course.Category,
		ThumbnailImage: course.ThumbnailImage,
		Tags:           course.Tags,
		Modules:        []string{},
		CreatedAt:      course.CreatedAt,
		UpdatedAt:      course.UpdatedAt,
	})
	if err != nil {
		return types.Course{}, err
	}
	return course, nil
}

// UpdateOwned overwrites the editable fields of a course owned by instructorID.
func (r *CourseRepository) UpdateOwned(ctx context.Context, instructorID string, course types.Course) (types.Course, error) {
	tags := course.Tags
	if tags == nil {
		tags = []string{}
	}
	update := bson.M{"$set": bson.M{
		"title":          course.Title,
		"description":    course.Description,
		"price":          course.Price,
		"category":       course.Category,
		"thumbnailImage": course.ThumbnailImage,
		"tags":           tags,
		"updatedAt":      time.Now().UTC(),
	}}
	result, err := r.courses.UpdateOne(ctx, bson.M{"_id": course.ID, "instructor": instructorID}, update)
	if err != nil {
		return types.Course{}, err
	}
	if result.MatchedCount == 0 {
		return types.Course{}, store.ErrNotFound
	}
	view, err := r.getView(ctx, course.ID)
	if err != nil {
		return types.Course{}, err
	}
	return view.toCourse(), nil
}

// DeleteOwned removes a course owned by instructorID together with its modules and lessons.
func (r *CourseRepository) DeleteOwned(ctx context.Context, id, instructorID string) error {
	var doc courseDocument
	err := r.courses.FindOneAndDelete(ctx, bson.M{"_id": id, "instructor": instructorID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.ErrNotFound
		}
		return err
	}
	if len(doc.Modules) == 0 {
		return nil
	}

	var moduleDocs []moduleDocument
	if err := r.findByIDs(ctx, r.modules, doc.Modules, &moduleDocs); err != nil {
		return err
	}
	var lessonIDs []string
	for _, m := range moduleDocs {
		lessonIDs = append(lessonIDs, m.Lessons...)
	}
	if len(lessonIDs) > 0 {
		if _, err := r.lessons.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": lessonIDs}}); err != nil {
			return err
		}
	}
	_, err = r.modules.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": doc.Modules}})
	return err
}
