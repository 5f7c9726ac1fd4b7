package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// handleListChats godoc
// @Summary List chats
// @Description Admins see every chat, regular users see only their own
// @Tags Chats
// @Produce json
// @Success 200 {object} ResponseData
// @Router /chats [get]
func (s *Server) handleListChats(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	chats, err := s.store.ListChatsForUser(c.Context(), caller.ID, caller.Privilege == store.PrivilegeAdmin)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "chats", chats)
}

// handleGetChat godoc
// @Summary Get a chat
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Success 200 {object} ResponseData
// @Router /chats/{id} [get]
func (s *Server) handleGetChat(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	chat, err := s.store.FindChatByID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(s.log, c, err)
	}
	if caller.Privilege != store.PrivilegeAdmin && chat.UserID != caller.ID {
		return writeError(s.log, c, apperr.PermissionDenied("you do not own this chat"))
	}
	return writeOK(c, fiber.StatusOK, "chat", chat)
}
