package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// handleListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Success 200 {object} ResponseData
// @Router /admin/users [get]
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	users, err := s.store.ListUsers(c.Context())
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "users", users)
}

type setPrivilegeRequest struct {
	PrivilegeLevel store.Privilege `json:"privlegeLevel"`
}

// handleSetUserPrivilege godoc
// @Summary Change a user's privilege level
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body setPrivilegeRequest true "New privilege"
// @Success 200 {object} ResponseData
// @Router /admin/user/{id}/privilege [patch]
func (s *Server) handleSetUserPrivilege(c *fiber.Ctx) error {
	var req setPrivilegeRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	if req.PrivilegeLevel != store.PrivilegeUser && req.PrivilegeLevel != store.PrivilegeAdmin {
		return writeError(s.log, c, apperr.InvalidArgument("privlegeLevel must be %q or %q", store.PrivilegeUser, store.PrivilegeAdmin))
	}
	user, err := s.store.SetUserPrivilege(c.Context(), c.Params("id"), req.PrivilegeLevel)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "privilege updated", user)
}
