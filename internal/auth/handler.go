package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

const maxJSONBodyBytes = 1 << 20

// Handler wires JSON HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    *TokenIssuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenIssuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		tokens:    tokens,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Login and
// refresh carry a tighter per-IP rate limit than the global stack.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
	})
	r.With(AttachIdentity(h.tokens)).Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.tokens))
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required,min=8,max=200"`
	Superuser bool   `json:"superuser"`
	Admin     bool   `json:"admin"`
	CompanyID string `json:"empresaId" validate:"omitempty,uuid"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, "login", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	companyID := uuid.Nil
	if req.CompanyID != "" {
		parsed, err := uuid.Parse(req.CompanyID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "empresaId inválido")
			return
		}
		companyID = parsed
	}

	// Role flags are only honoured when the caller holds a privileged
	// identity; anonymous registration always creates a standard account.
	identity := shared.IdentityFromContext(r.Context())
	privileged := identity != nil && (identity.Superuser || identity.Admin)

	view, err := h.service.Register(r.Context(), RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Superuser: privileged && req.Superuser,
		Admin:     privileged && req.Admin,
		CompanyID: companyID,
	})
	if err != nil {
		h.writeServiceError(w, "register", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"usuario": view})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, "refresh", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeServiceError(w, "logout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"mensaje": "sesión cerrada"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "no autorizado")
		return
	}

	view, err := h.service.Profile(r.Context(), identity.AccountID)
	if err != nil {
		h.writeServiceError(w, "profile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"usuario": view})
}

// decode parses and validates the JSON body, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "faltan campos obligatorios")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		retryAfter := int(locked.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "demasiados intentos fallidos")
	case errors.Is(err, shared.ErrValidation):
		h.writeError(w, http.StatusBadRequest, "faltan campos obligatorios")
	case errors.Is(err, shared.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "usuario no encontrado")
	case errors.Is(err, shared.ErrConflict):
		h.writeError(w, http.StatusConflict, "el nombre de usuario ya existe")
	case errors.Is(err, shared.ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, "no autorizado")
	default:
		h.logger.Error(op, slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "error interno")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, mensaje string) {
	h.writeJSON(w, status, map[string]string{"error": mensaje})
}
