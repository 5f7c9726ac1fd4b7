package httpapi

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

type startWhatsAppRequest struct {
	ConnectionName   string `json:"connectionName"`
	SystemPromptName string `json:"systemPromptName"`
}

// handleStartWhatsApp godoc
// @Summary Start a WhatsApp session
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param request body startWhatsAppRequest true "Session payload"
// @Success 201 {object} ResponseData
// @Router /whatsapp/session [post]
func (s *Server) handleStartWhatsApp(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	var req startWhatsAppRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	req.ConnectionName = strings.TrimSpace(req.ConnectionName)
	if len(req.ConnectionName) < 3 || len(req.ConnectionName) > 100 {
		return writeError(s.log, c, apperr.InvalidArgument("connectionName must be 3-100 characters"))
	}
	if err := s.gateway.StartWhatsAppSession(c.Context(), req.ConnectionName, req.SystemPromptName, caller); err != nil {
		return writeError(s.log, c, err)
	}
	status, _ := s.gateway.GetStatus(c.Context(), req.ConnectionName, caller)
	return writeOK(c, fiber.StatusCreated, "whatsapp session starting", map[string]any{
		"connectionName": req.ConnectionName,
		"status":         status,
	})
}

// handleWhatsAppQR godoc
// @Summary Get a session's pairing QR code
// @Description Renders the raw QR text as a base64 PNG data URL
// @Tags WhatsApp
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} ResponseData
// @Router /whatsapp/session/{name}/qr [get]
func (s *Server) handleWhatsAppQR(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	name := c.Params("name")
	qrText, err := s.gateway.GetQR(c.Context(), name, caller)
	if err != nil {
		return writeError(s.log, c, err)
	}
	if qrText == "" {
		return writeError(s.log, c, apperr.NotFound("no pending qr code for %q", name))
	}
	png, err := qrcode.Encode(qrText, qrcode.Medium, 256)
	if err != nil {
		return writeError(s.log, c, apperr.Internal(err))
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return writeOK(c, fiber.StatusOK, "qr code", map[string]string{"qr": dataURL})
}

// handleWhatsAppStatus godoc
// @Summary Get a session's connection status
// @Tags WhatsApp
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} ResponseData
// @Router /whatsapp/session/{name}/status [get]
func (s *Server) handleWhatsAppStatus(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	status, err := s.gateway.GetStatus(c.Context(), c.Params("name"), caller)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "status", map[string]store.WhatsAppStatus{"status": status})
}

type sendWhatsAppRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// handleSendWhatsApp godoc
// @Summary Send a WhatsApp message
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param name path string true "Connection name"
// @Param request body sendWhatsAppRequest true "Message payload"
// @Success 200 {object} ResponseData
// @Router /whatsapp/session/{name}/message [post]
func (s *Server) handleSendWhatsApp(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	var req sendWhatsAppRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	messageID, err := s.gateway.SendWhatsApp(c.Context(), c.Params("name"), req.To, req.Message, caller)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "message sent", map[string]string{"messageId": messageID})
}

// handleCloseWhatsApp godoc
// @Summary Close a WhatsApp session
// @Tags WhatsApp
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} ResponseData
// @Router /whatsapp/session/{name} [delete]
func (s *Server) handleCloseWhatsApp(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	if err := s.gateway.CloseWhatsApp(c.Context(), c.Params("name"), caller); err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "session closed", nil)
}
