package types

import "time"

// Course represents a purchasable course in its summary view.
// The summary view never carries modules; see CourseDetail.
type Course struct {
	// ID is the unique identifier of the course.
	ID string `json:"id" db:"id"`

	// Title is the human-readable name of the course.
	Title string `json:"title" db:"title"`

	// Description is the long-form course description.
	Description string `json:"description" db:"description"`

	// Instructor is the owning user. Read paths expand it with the
	// instructor's public fields; write paths may only carry the ID.
	Instructor Instructor `json:"instructor" db:"instructor_id"`

	// Price is the course price. It is never negative.
	Price float64 `json:"price" db:"price"`

	// Category is a free-form category label matched exactly by search.
	Category string `json:"category" db:"category"`

	// ThumbnailImage is the public URL of the course thumbnail.
	ThumbnailImage string `json:"thumbnailImage" db:"thumbnail_image"`

	// Tags are free-form labels used for search.
	Tags []string `json:"tags" db:"tags"`

	// CreatedAt is the timestamp at which the course was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the course.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Instructor is the expanded owner of a course.
type Instructor struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Email        string  `json:"email,omitempty"`
	Role         string  `json:"role,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

// CourseDetail is a course with its modules and lessons fully expanded.
// Modules is always serialized, even when empty.
type CourseDetail struct {
	Course
	Modules []Module `json:"modules"`
}

// Module is an ordered section of a course.
type Module struct {
	ID       string   `json:"id" db:"id"`
	Title    string   `json:"title" db:"title"`
	Position int      `json:"position" db:"position"`
	Lessons  []Lesson `json:"lessons"`
}

// Lesson is an ordered unit of content inside a module.
type Lesson struct {
	ID       string `json:"id" db:"id"`
	Title    string `json:"title" db:"title"`
	Content  string `json:"content" db:"content"`
	VideoURL string `json:"videoUrl,omitempty" db:"video_url"`
	Position int    `json:"position" db:"position"`
}

// CourseSearch holds the optional filters of a course search.
// Zero-valued strings and nil bounds are treated as absent.
type CourseSearch struct {
	// Query is matched case-insensitively as a literal substring against
	// the title, the description, or any tag.
	Query string

	// Category must equal the course category exactly.
	Category string

	// MinPrice is the inclusive lower price bound.
	MinPrice *float64

	// MaxPrice is the inclusive upper price bound.
	MaxPrice *float64
}

// FileUpload is an uploaded binary attached to a request.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}
