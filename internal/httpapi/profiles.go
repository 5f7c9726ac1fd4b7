package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

type profileRequest struct {
	Name                  string                   `json:"name"`
	Identity              string                   `json:"identity"`
	Description           string                   `json:"description"`
	CommunicationStyle    store.CommunicationStyle `json:"communicationStyle"`
	PrimaryLanguage       string                   `json:"primaryLanguage"`
	SecondaryLanguage     string                   `json:"secondaryLanguage"`
	LanguageRules         []string                 `json:"languageRules"`
	KnowledgeBase         []store.KnowledgeItem    `json:"knowledgeBase"`
	Tags                  []string                 `json:"tags"`
	InitialInteractions   []string                 `json:"initialInteractions"`
	InteractionGuidelines []string                 `json:"interactionGuidelines"`
	ExampleResponses      []store.ExampleResponse  `json:"exampleResponses"`
	EdgeCases             []store.EdgeCase         `json:"edgeCases"`
	ToolConfig            *store.ToolConfig        `json:"toolConfig"`
	PrivacyGuidelines     string                   `json:"privacyGuidelines"`
	ToolServers           []store.ToolServer       `json:"toolServers"`
	IsEnabled             *bool                    `json:"isEnabled"`
}

// handleCreateProfile godoc
// @Summary Create a bot profile
// @Tags BotProfile
// @Accept json
// @Produce json
// @Param request body profileRequest true "Profile payload"
// @Success 201 {object} ResponseData
// @Router /botprofile [post]
func (s *Server) handleCreateProfile(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	var req profileRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Identity) == "" {
		return writeError(s.log, c, apperr.InvalidArgument("name and identity are required"))
	}
	profile := &store.BotProfile{
		ID:                    uuid.NewString(),
		OwnerUserID:           caller.ID,
		Name:                  req.Name,
		Identity:              req.Identity,
		Description:           req.Description,
		Style:                 req.CommunicationStyle,
		PrimaryLanguage:       req.PrimaryLanguage,
		SecondaryLanguage:     req.SecondaryLanguage,
		LanguageRules:         req.LanguageRules,
		KnowledgeBase:         req.KnowledgeBase,
		Tags:                  req.Tags,
		InitialInteractions:   req.InitialInteractions,
		InteractionGuidelines: req.InteractionGuidelines,
		ExampleResponses:      req.ExampleResponses,
		EdgeCases:             req.EdgeCases,
		ToolConfig:            req.ToolConfig,
		PrivacyGuidelines:     req.PrivacyGuidelines,
		ToolServers:           req.ToolServers,
		IsEnabled:             true,
	}
	if req.IsEnabled != nil {
		profile.IsEnabled = *req.IsEnabled
	}
	created, err := s.store.CreateProfile(c.Context(), profile)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusCreated, "profile created", created)
}

// handleListProfiles godoc
// @Summary List bot profiles
// @Description Both /botprofile and /systemprompt name the same resource
// @Tags BotProfile
// @Produce json
// @Success 200 {object} ResponseData
// @Router /botprofile [get]
func (s *Server) handleListProfiles(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	profiles, err := s.store.ListProfilesForOwner(c.Context(), caller.ID)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "profiles", profiles)
}

// handleGetProfile godoc
// @Summary Get a bot profile
// @Tags BotProfile
// @Produce json
// @Param name path string true "Profile name"
// @Success 200 {object} ResponseData
// @Router /botprofile/{name} [get]
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	profile, err := s.store.FindProfile(c.Context(), caller.ID, c.Params("name"))
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "profile", profile)
}

// handleUpdateProfile godoc
// @Summary Update a bot profile
// @Tags BotProfile
// @Accept json
// @Produce json
// @Param name path string true "Profile name"
// @Param request body profileRequest true "Patch payload"
// @Success 200 {object} ResponseData
// @Router /botprofile/{name} [put]
func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	existing, err := s.store.FindProfile(c.Context(), caller.ID, c.Params("name"))
	if err != nil {
		return writeError(s.log, c, err)
	}
	var req profileRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	patch := store.ProfilePatch{
		Identity:              nonEmpty(req.Identity),
		Description:           nonEmpty(req.Description),
		PrimaryLanguage:       nonEmpty(req.PrimaryLanguage),
		SecondaryLanguage:     nonEmpty(req.SecondaryLanguage),
		LanguageRules:         req.LanguageRules,
		KnowledgeBase:         req.KnowledgeBase,
		Tags:                  req.Tags,
		InitialInteractions:   req.InitialInteractions,
		InteractionGuidelines: req.InteractionGuidelines,
		ExampleResponses:      req.ExampleResponses,
		EdgeCases:             req.EdgeCases,
		ToolConfig:            req.ToolConfig,
		PrivacyGuidelines:     nonEmpty(req.PrivacyGuidelines),
		ToolServers:           req.ToolServers,
		IsEnabled:             req.IsEnabled,
	}
	if req.CommunicationStyle != "" {
		patch.Style = &req.CommunicationStyle
	}
	updated, err := s.store.UpdateProfileByID(c.Context(), existing.ID, patch)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "profile updated", updated)
}

// handleDeleteProfile godoc
// @Summary Delete a bot profile
// @Tags BotProfile
// @Produce json
// @Param name path string true "Profile name"
// @Success 200 {object} ResponseData
// @Router /botprofile/{name} [delete]
func (s *Server) handleDeleteProfile(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	existing, err := s.store.FindProfile(c.Context(), caller.ID, c.Params("name"))
	if err != nil {
		return writeError(s.log, c, err)
	}
	if err := s.store.DeleteProfileByID(c.Context(), existing.ID); err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "profile deleted", nil)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
