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

const formFieldProfileImage = "profileImage"

// UserHandler provides account and profile endpoints.
type UserHandler struct {
	users        *services.UserService
	log          *logger.Logger
	maxFileBytes int64
}

func NewUserHandler(users *services.UserService, log *logger.Logger, maxFileBytes int64) *UserHandler {
	return &UserHandler{users: users, log: log, maxFileBytes: maxFileBytes}
}

// UserRouter registers account routes. limiter guards the credential endpoints.
func UserRouter(r chi.Router, h *UserHandler, authMiddleware, limiter func(http.Handler) http.Handler) {
	r.With(limiter).Post("/register", h.Register)
	r.With(limiter).Post("/login", h.Login)
	r.With(authMiddleware).Get("/profile", h.GetProfile)
	r.With(authMiddleware).Put("/profile", h.UpdateProfile)
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=learner instructor"`
}

func (req *RegisterRequest) bindForm(v url.Values) error {
	req.Name = v.Get("name")
	req.Email = v.Get("email")
	req.Password = v.Get("password")
	req.Role = v.Get("role")
	return nil
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (req *LoginRequest) bindForm(v url.Values) error {
	req.Email = v.Get("email")
	req.Password = v.Get("password")
	return nil
}

// ProfileRequest overwrites the profile. ProfileImage is stored as sent
// unless a file is uploaded.
type ProfileRequest struct {
	Name         string  `json:"name"`
	Email        string  `json:"email" validate:"omitempty,email"`
	ProfileImage *string `json:"profileImage"`
}

func (req *ProfileRequest) bindForm(v url.Values) error {
	req.Name = v.Get("name")
	req.Email = v.Get("email")
	if v.Has(formFieldProfileImage) {
		image := v.Get(formFieldProfileImage)
		req.ProfileImage = &image
	}
	return nil
}

type LoginResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    types.User `json:"user"`
}

type UserResponse struct {
	Message string     `json:"message,omitempty"`
	User    types.User `json:"user"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	image, err := bindRequest(r, &req, formFieldProfileImage, h.maxFileBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	_, err = h.users.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Image:    image,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "Email already in use.")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeServerError(w, r, h.log, "Registration failed.", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully."})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if _, err := bindRequest(r, &req, "", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "Invalid email or password.")
			return
		}
		writeServerError(w, r, h.log, "Login failed.", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful.",
		Token:   result.Token,
		User:    result.User,
	})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	user, err := h.users.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found.")
			return
		}
		writeServerError(w, r, h.log, "Failed to fetch user profile.", err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req ProfileRequest
	image, err := bindRequest(r, &req, formFieldProfileImage, h.maxFileBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), claims.UserID, services.ProfileInput{
		Name:         req.Name,
		Email:        req.Email,
		ProfileImage: req.ProfileImage,
		Image:        image,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "Email already in use.")
		case errors.Is(err, services.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found.")
		default:
			writeServerError(w, r, h.log, "Failed to update profile.", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Message: "Profile updated successfully.", User: user})
}
