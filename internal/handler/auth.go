package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type AuthClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// issueToken 为用户签发 HS256 令牌，返回令牌和过期时间
func (h *Handler) issueToken(user *domain.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(time.Duration(h.config.JWT.Expiration) * time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString([]byte(h.config.JWT.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// tokenCookie 生成保存令牌的 http-only cookie，生产环境下只允许 https 同站发送
func (h *Handler) tokenCookie(value string, expiresAt time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Expires:  expiresAt,
		Path:     "/",
		HttpOnly: true,
	}
	if h.config.Environment == "production" {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}
	return cookie
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user, err := h.repository.GetUserByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.errorResponse(w, r, ReasonInvalidCredentials, "用户名不存在或密码错误")
		return
	case err != nil:
		h.internalServerError(w, r, err)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		h.errorResponse(w, r, ReasonInvalidCredentials, "用户名不存在或密码错误")
		return
	case err != nil:
		h.internalServerError(w, r, err)
		return
	}

	// 停用的账号即使密码正确也不能登录
	if !user.IsActive {
		h.errorResponse(w, r, ReasonForbidden, "账号已被停用")
		return
	}

	token, expiresAt, err := h.issueToken(user, time.Now())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	http.SetCookie(w, h.tokenCookie(token, expiresAt))

	h.successResponse(w, r, "登录成功", user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.tokenCookie("", time.Now().Add(-time.Hour)))
	h.successResponse(w, r, "登出成功", nil)
}
