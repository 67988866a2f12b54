package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mastertrade/internal/auth"
)

// loginRequest is the operator login payload: password plus a TOTP code,
// matching the bcrypt+TOTP second factor the auth package implements.
type loginRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	OTPCode    string `json:"otp_code"`
}

// operatorCredential is the subset of operator account state the Control
// API checks a login attempt against. In a single-operator deployment this
// is sourced from configuration rather than a dedicated table; SPEC_FULL's
// scope is the trading runtime, not a multi-tenant operator directory.
type operatorCredential struct {
	PasswordHash string
	OTPSecret    string
}

var operatorCredentials = map[string]operatorCredential{}

// RegisterOperator seeds (or replaces) an operator's credential, called
// once at startup from configuration/environment.
func RegisterOperator(operatorID, passwordHash, otpSecret string) {
	operatorCredentials[operatorID] = operatorCredential{PasswordHash: passwordHash, OTPSecret: otpSecret}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cred, ok := operatorCredentials[req.OperatorID]
	if !ok || !auth.CheckPassword(req.Password, cred.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if cred.OTPSecret != "" && !auth.VerifyOTP(cred.OTPSecret, req.OTPCode) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid otp code"})
		return
	}
	token, err := auth.GenerateJWT(req.OperatorID, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
