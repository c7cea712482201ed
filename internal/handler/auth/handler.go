package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodchat/backend/internal/middleware"
	authService "github.com/zhouzirui/moodchat/backend/internal/service/auth"
	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

// Handler 登录相关的HTTP处理器
type Handler struct {
	authSvc *authService.Service
}

// New 创建登录处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes mounts the login endpoints; /me is guarded by requireAuth.
func (h *Handler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/check-email", h.handleCheckEmail)
		r.Post("/request-otp", h.handleRequestOTP)
		r.Post("/verify-otp", h.handleVerifyOTP)
		r.With(requireAuth).Get("/me", h.handleMe)
	})
}

type credentials struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	OTP   string `json:"otp"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var payload credentials
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondFailure(w, http.StatusBadRequest, "Invalid request body")
		return payload, false
	}
	return payload, true
}

func (h *Handler) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.authSvc.CheckEmail(r.Context(), payload.Email)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	verified := result.Verified
	if !verified {
		utils.RespondJSON(w, http.StatusOK, utils.Envelope{Success: true, Verified: &verified, Message: "OTP verification required"})
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope{
		Success:  true,
		Verified: &verified,
		Message:  "Login successful",
		Data:     result.Session,
	})
}

func (h *Handler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.authSvc.RequestOTP(r.Context(), payload.Email, payload.Name); err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope{Success: true, Message: "OTP sent to your email address"})
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	session, err := h.authSvc.VerifyOTP(r.Context(), payload.Email, payload.OTP)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope{
		Success: true,
		Message: "OTP verified successfully",
		Data:    session,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	profile, err := h.authSvc.CurrentUser(r.Context(), id.UserID)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope{
		Success: true,
		Data:    map[string]any{"user": profile},
	})
}

func respondAuthError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, authService.ErrEmailRequired), errors.Is(err, authService.ErrOTPRequired):
		status = http.StatusBadRequest
	case errors.Is(err, authService.ErrInvalidCredentials),
		errors.Is(err, authService.ErrNoOTP),
		errors.Is(err, authService.ErrOTPExpired),
		errors.Is(err, authService.ErrInvalidOTP):
		status = http.StatusUnauthorized
	case errors.Is(err, authService.ErrInactive):
		status = http.StatusForbidden
	case errors.Is(err, authService.ErrUserNotFound):
		status = http.StatusNotFound
	default:
		log.Printf("[auth] request failed: %v", err)
	}
	utils.RespondFailure(w, status, authService.Message(err))
}
