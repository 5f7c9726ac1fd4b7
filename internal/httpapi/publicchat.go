package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/pipeline"
)

// handleStartPublicChat godoc
// @Summary Start an anonymous public chat session
// @Tags PublicChat
// @Produce json
// @Param profileId path string true "Profile ID"
// @Success 201 {object} ResponseData
// @Router /publicchat/{profileId}/start [post]
func (s *Server) handleStartPublicChat(c *fiber.Ctx) error {
	started, err := s.gateway.StartPublicChat(c.Context(), c.Params("profileId"))
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusCreated, "public chat started", started)
}

type publicChatMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// handlePublicChatMessage godoc
// @Summary Send a public chat message
// @Tags PublicChat
// @Accept json
// @Produce json
// @Param profileId path string true "Profile ID"
// @Param request body publicChatMessageRequest true "Message payload"
// @Success 200 {object} ResponseData
// @Router /publicchat/{profileId}/msg [post]
func (s *Server) handlePublicChatMessage(c *fiber.Ctx) error {
	var req publicChatMessageRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	if req.SessionID == "" {
		return writeError(s.log, c, apperr.InvalidArgument("sessionId is required"))
	}
	result, err := s.gateway.SendPublicMessage(c.Context(), req.SessionID, pipeline.Turn{Text: req.Message})
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "reply", map[string]any{"text": result.Text, "toolCalls": result.ToolCalls})
}

type endPublicChatRequest struct {
	SessionID string `json:"sessionId"`
}

// handleEndPublicChat godoc
// @Summary End a public chat session
// @Tags PublicChat
// @Accept json
// @Produce json
// @Param profileId path string true "Profile ID"
// @Param request body endPublicChatRequest true "Session to end"
// @Success 200 {object} ResponseData
// @Router /publicchat/{profileId}/end [post]
func (s *Server) handleEndPublicChat(c *fiber.Ctx) error {
	var req endPublicChatRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	if err := s.gateway.EndPublicChat(c.Context(), req.SessionID); err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "public chat ended", nil)
}

// handlePublicChatHistory godoc
// @Summary Get public chat history
// @Tags PublicChat
// @Produce json
// @Param profileId path string true "Profile ID"
// @Param sessionId query string true "Session ID"
// @Success 200 {object} ResponseData
// @Router /publicchat/{profileId}/history [get]
func (s *Server) handlePublicChatHistory(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return writeError(s.log, c, apperr.InvalidArgument("sessionId query parameter is required"))
	}
	messages, err := s.gateway.GetPublicHistory(c.Context(), sessionID)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "history", map[string]any{"messages": messages})
}
