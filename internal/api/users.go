package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foyerlink/foyer-core/internal/auth"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

type createUserRequest struct {
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Password   string    `json:"password"`
	Role       auth.Role `json:"role"`
	Department string    `json:"department,omitempty"`
	Phone      string    `json:"phone,omitempty"`
}

type updateUserRequest struct {
	Name       *string    `json:"name,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Role       *auth.Role `json:"role,omitempty"`
	Department *string    `json:"department,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
	Password   *string    `json:"password,omitempty"`
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.userRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a new staff account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Name == "" {
		writeBadRequest(w, "username, password, and name are required")
		return
	}
	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "username must be 1-64 alphanumeric characters, dots, hyphens, or underscores")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if !auth.IsValidRole(req.Role) {
		writeBadRequest(w, "invalid role: must be host, guard, or admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Department:   req.Department,
		Phone:        req.Phone,
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := s.userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("create user failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	principal := principalFromContext(r.Context())
	s.logger.Info("user created",
		"user_id", user.ID,
		"username", user.Username,
		"role", user.Role,
		"created_by", principal.UserID,
	)

	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns a single user account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), id)
	if err != nil {
		s.writeUserError(w, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser applies a partial update to a user account.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), id)
	if err != nil {
		s.writeUserError(w, err, "failed to load user")
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		if !auth.IsValidRole(*req.Role) {
			writeBadRequest(w, "invalid role: must be host, guard, or admin")
			return
		}
		user.Role = *req.Role
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.userRepo.Update(r.Context(), user); err != nil {
		s.writeUserError(w, err, "failed to update user")
		return
	}

	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			writeBadRequest(w, "password must be at least 8 characters")
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			s.logger.Error("hash password failed", "error", err)
			writeInternalError(w, "failed to update password")
			return
		}
		if err := s.userRepo.UpdatePassword(r.Context(), id, hash); err != nil {
			s.writeUserError(w, err, "failed to update password")
			return
		}
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	principal := principalFromContext(r.Context())
	if principal.UserID == id {
		writeBadRequest(w, "cannot delete your own account")
		return
	}

	if err := s.userRepo.Delete(r.Context(), id); err != nil {
		s.writeUserError(w, err, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// writeUserError maps user repository errors onto HTTP responses.
func (s *Server) writeUserError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, auth.ErrUsernameExists):
		writeConflict(w, "username already exists")
	default:
		s.logger.Error("user operation failed", "error", err)
		writeInternalError(w, fallback)
	}
}

// userIDParam parses the {id} route parameter, writing a 400 on failure.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
