package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/services"
	"github.com/learnhub/apiserver/types"
)

const (
	formFieldThumbnail = "thumbnailImage"
	msgCourseNotOwned  = "Course not found or unauthorized"
	queryParamQuery    = "query"
	queryParamCategory = "category"
	queryParamMinPrice = "minPrice"
	queryParamMaxPrice = "maxPrice"
	courseIDParam      = "id"
)

// CourseHandler provides HTTP handlers for courses.
type CourseHandler struct {
	courses      *services.CourseService
	log          *logger.Logger
	maxFileBytes int64
}

func NewCourseHandler(courses *services.CourseService, log *logger.Logger, maxFileBytes int64) *CourseHandler {
	return &CourseHandler{courses: courses, log: log, maxFileBytes: maxFileBytes}
}

// CourseRouter registers course routes. Static paths are registered before
// the {id} catch-all.
func CourseRouter(r chi.Router, h *CourseHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/", h.ListCourses)
	r.Get("/search", h.SearchCourses)
	r.With(authMiddleware).Get("/instructor/courses", h.ListInstructorCourses)
	r.With(authMiddleware).Post("/create/{id}", h.CreateCourse)
	r.With(authMiddleware).Put("/update/{id}", h.UpdateCourse)
	r.With(authMiddleware).Delete("/delete/{id}", h.DeleteCourse)
	r.Get("/{id}", h.GetCourse)
}

// CourseRequest carries the editable course fields in any body encoding.
type CourseRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Price          flexPrice `json:"price" validate:"gte=0"`
	Category       string    `json:"category"`
	ThumbnailImage string    `json:"thumbnailImage"`
	Tags           flexTags  `json:"tags"`
}

func (req *CourseRequest) bindForm(v url.Values) error {
	req.Title = v.Get("title")
	req.Description = v.Get("description")
	req.Category = v.Get("category")
	req.ThumbnailImage = v.Get(formFieldThumbnail)
	req.Tags = parseTags(v["tags"])
	price, err := parsePrice(v.Get("price"))
	if err != nil {
		return errors.New("price must be a number")
	}
	if price != nil {
		req.Price = flexPrice(*price)
	}
	return nil
}

func (req CourseRequest) input(image *types.FileUpload) services.CourseInput {
	return services.CourseInput{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Price:          float64(req.Price),
		Category:       strings.TrimSpace(req.Category),
		ThumbnailImage: strings.TrimSpace(req.ThumbnailImage),
		Tags:           []string(req.Tags),
		Image:          image,
	}
}

type CourseResponse struct {
	Message string       `json:"message"`
	Course  types.Course `json:"course"`
}

func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListAll(r.Context())
	if err != nil {
		writeServerError(w, r, h.log, "Failed to fetch courses", err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (h *CourseHandler) SearchCourses(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCourseSearch(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	courses, err := h.courses.Search(r.Context(), filter)
	if err != nil {
		writeServerError(w, r, h.log, "Failed to search courses", err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func parseCourseSearch(q url.Values) (types.CourseSearch, error) {
	filter := types.CourseSearch{
		Query:    strings.TrimSpace(q.Get(queryParamQuery)),
		Category: strings.TrimSpace(q.Get(queryParamCategory)),
	}
	var err error
	if filter.MinPrice, err = parsePrice(q.Get(queryParamMinPrice)); err != nil {
		return types.CourseSearch{}, errors.New("minPrice must be a number")
	}
	if filter.MaxPrice, err = parsePrice(q.Get(queryParamMaxPrice)); err != nil {
		return types.CourseSearch{}, errors.New("maxPrice must be a number")
	}
	return filter, nil
}

func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.Get(r.Context(), chi.URLParam(r, courseIDParam))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		writeServerError(w, r, h.log, "Failed to fetch course", err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// CreateCourse ignores the {id} path segment; the owner comes from the token.
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req CourseRequest
	image, err := bindRequest(r, &req, formFieldThumbnail, h.maxFileBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	course, err := h.courses.Create(r.Context(), claims.UserID, req.input(image))
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServerError(w, r, h.log, "Failed to create course", err)
		return
	}

	writeJSON(w, http.StatusCreated, CourseResponse{Message: "Course created successfully", Course: course})
}

func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req CourseRequest
	image, err := bindRequest(r, &req, formFieldThumbnail, h.maxFileBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	course, err := h.courses.Update(r.Context(), claims.UserID, chi.URLParam(r, courseIDParam), req.input(image))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFoundOrUnauthorized):
			writeError(w, http.StatusNotFound, msgCourseNotOwned)
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeServerError(w, r, h.log, "Failed to update course", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, CourseResponse{Message: "Course updated successfully", Course: course})
}

func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	if err := h.courses.Delete(r.Context(), claims.UserID, chi.URLParam(r, courseIDParam)); err != nil {
		if errors.Is(err, services.ErrNotFoundOrUnauthorized) {
			writeError(w, http.StatusNotFound, msgCourseNotOwned)
			return
		}
		writeServerError(w, r, h.log, "Failed to delete course", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Course deleted successfully"})
}

func (h *CourseHandler) ListInstructorCourses(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	courses, err := h.courses.ListByInstructor(r.Context(), claims.UserID)
	if err != nil {
		writeServerError(w, r, h.log, "Failed to fetch instructor courses", err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}
