package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// accessTokenTTL mirrors the teacher's JWTService: a short-lived access
// token validated on every request, since privilege is re-read from the
// store rather than trusted from the token's claims.
const accessTokenTTL = 15 * time.Minute

func issueAccessToken(secret []byte, userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(accessTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func parseAccessToken(secret []byte, raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Unauthenticated("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.Unauthenticated("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", apperr.Unauthenticated("invalid user_id in token")
	}
	return userID, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

const callerLocalsKey = "caller"

func callerFromContext(c *fiber.Ctx) *store.User {
	u, _ := c.Locals(callerLocalsKey).(*store.User)
	return u
}

// requireAuth validates the Bearer token and resolves it to a live User
// record on every request rather than trusting the token's claims alone,
// so a privilege change or account removal takes effect without waiting
// for the token to expire. Grounded on internal/core/auth/middleware.go's
// AuthMiddleware.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	if err := s.authenticate(c); err != nil {
		return writeError(s.log, c, err)
	}
	return c.Next()
}

// authenticate resolves the Bearer token to the caller and stores it in
// c.Locals, without passing control to the next handler.
func (s *Server) authenticate(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperr.Unauthenticated("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return apperr.Unauthenticated("invalid authorization header format, use: Bearer <token>")
	}
	userID, err := parseAccessToken(s.jwtSecret, parts[1])
	if err != nil {
		return err
	}
	user, err := s.store.FindUserByID(c.Context(), userID)
	if err != nil {
		return err
	}
	c.Locals(callerLocalsKey, user)
	return nil
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if err := s.authenticate(c); err != nil {
		return writeError(s.log, c, err)
	}
	if callerFromContext(c).Privilege != store.PrivilegeAdmin {
		return writeError(s.log, c, apperr.PermissionDenied("admin privilege required"))
	}
	return c.Next()
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// handleRegister godoc
// @Summary Register a new user
// @Description Creates a user account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Registration payload"
// @Success 201 {object} ResponseData
// @Router /auth/register [post]
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		return writeError(s.log, c, apperr.InvalidArgument("email is required and password must be at least 8 characters"))
	}
	hashed, err := hashPassword(req.Password)
	if err != nil {
		return writeError(s.log, c, apperr.Internal(err))
	}
	user, err := s.store.RegisterUser(c.Context(), req.Email, hashed, req.Name)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusCreated, "user registered", fiber.Map{"userId": user.ID, "email": user.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin godoc
// @Summary Log in
// @Description Exchanges email/password for a bearer access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} ResponseData
// @Router /auth/login [post]
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(s.log, c, err)
	}
	user, err := s.store.FindUserByEmail(c.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil || !checkPasswordHash(req.Password, user.Password) {
		return writeError(s.log, c, apperr.Unauthenticated("invalid email or password"))
	}
	token, err := issueAccessToken(s.jwtSecret, user.ID)
	if err != nil {
		return writeError(s.log, c, apperr.Internal(err))
	}
	return writeOK(c, fiber.StatusOK, "login success", fiber.Map{
		"userId":      user.ID,
		"email":       user.Email,
		"accessToken": token,
		"expiresIn":   int64(accessTokenTTL.Seconds()),
	})
}

// handleLogout godoc
// @Summary Log out
// @Description No server-side session to invalidate; the client discards its token
// @Tags Auth
// @Produce json
// @Success 200 {object} ResponseData
// @Router /auth/logout [post]
func (s *Server) handleLogout(c *fiber.Ctx) error {
	return writeOK(c, fiber.StatusOK, "logout success", nil)
}

// handleMe godoc
// @Summary Current user
// @Tags Auth
// @Produce json
// @Success 200 {object} ResponseData
// @Router /auth/me [get]
func (s *Server) handleMe(c *fiber.Ctx) error {
	return writeOK(c, fiber.StatusOK, "current user", callerFromContext(c))
}
