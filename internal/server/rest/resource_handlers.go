package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/gorilla/mux"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// users

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context(), TenantFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": nonNil(users)})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), TenantFromRequest(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": u})
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName" validate:"omitempty,max=50"`
	LastName  *string `json:"lastName" validate:"omitempty,max=50"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Email == nil && req.FirstName == nil && req.LastName == nil {
		respondError(w, http.StatusBadRequest, "At least one field must be provided")
		return
	}

	u, err := s.users.Get(r.Context(), TenantFromRequest(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "User not found")
		return
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.FirstName != nil {
		u.FirstName = req.FirstName
	}
	if req.LastName != nil {
		u.LastName = req.LastName
	}

	u, err = s.users.Update(r.Context(), u)
	if err != nil {
		s.writeServiceError(w, r, err, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "User updated successfully", "user": u})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), TenantFromRequest(r), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// organizations

type createOrganizationRequest struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Industry    string     `json:"industry" validate:"max=100"`
	DateFounded *time.Time `json:"dateFounded"`
}

type updateOrganizationRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=100"`
	Industry    *string    `json:"industry" validate:"omitempty,max=100"`
	DateFounded *time.Time `json:"dateFounded"`
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.organizations.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"organizations": nonNil(orgs)})
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.organizations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	org, err := s.organizations.Create(r.Context(), &models.Organization{
		Name:        req.Name,
		Industry:    req.Industry,
		DateFounded: req.DateFounded,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":      "Organization has been created",
		"organization": org,
	})
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req updateOrganizationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.Industry == nil && req.DateFounded == nil {
		respondError(w, http.StatusBadRequest, "At least one field must be provided")
		return
	}

	org, err := s.organizations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.Industry != nil {
		org.Industry = *req.Industry
	}
	if req.DateFounded != nil {
		org.DateFounded = req.DateFounded
	}

	if err := s.organizations.Update(r.Context(), org); err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":      "Organization updated successfully",
		"organization": org,
	})
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := s.organizations.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err, "Organization not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Organization deleted successfully"})
}

// orders

type orderRequest struct {
	TotalAmount int64 `json:"totalAmount" validate:"required,gt=0"`
}

type pagination struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	TotalCount      int  `json:"totalCount"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, msg := pageParams(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	orders, err := s.orders.List(r.Context(), TenantFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err, "Order not found")
		return
	}

	total := len(orders)
	pages := (total + limit - 1) / limit
	from := min((page-1)*limit, total)
	to := min(from+limit, total)

	respondJSON(w, http.StatusOK, map[string]any{
		"orders": nonNil(orders[from:to]),
		"pagination": pagination{
			Page:            page,
			Limit:           limit,
			TotalCount:      total,
			TotalPages:      pages,
			HasNextPage:     page < pages,
			HasPreviousPage: page > 1,
		},
	})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), TenantFromRequest(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	o, err := s.orders.Create(r.Context(), &models.Order{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		TotalAmount:    req.TotalAmount,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "Order not found")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"message": "Order has been created", "order": o})
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	o, err := s.orders.Update(r.Context(), &models.Order{
		ID:             mux.Vars(r)["id"],
		OrganizationID: TenantFromRequest(r),
		TotalAmount:    req.TotalAmount,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Order updated successfully", "order": o})
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.orders.Delete(r.Context(), TenantFromRequest(r), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully"})
}

// pageParams reads page and limit; msg is non-empty when either is invalid.
func pageParams(r *http.Request) (page, limit int, msg string) {
	page, limit = 1, defaultPageLimit
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, "Page must be a positive integer"
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, "Limit must be a positive integer"
		}
		if n > maxPageLimit {
			return 0, 0, "Limit cannot exceed 100"
		}
		limit = n
	}
	return page, limit, ""
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
