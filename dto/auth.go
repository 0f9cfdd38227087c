package dto

import (
	"sessionguard/model"
	"sessionguard/services"
)

type UserResponse struct {
	UserID        string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

type LoginResponse struct {
	Message      string             `json:"message"`
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         UserResponse       `json:"user"`
	Session      *model.SessionView `json:"session_info"`
	Notice       string             `json:"notice,omitempty"`
}

func ToLoginResponse(result *services.LoginResult) LoginResponse {
	return LoginResponse{
		Message:      "Login successful",
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		User: UserResponse{
			UserID:        result.User.UserID,
			Email:         result.User.Email,
			Name:          result.User.Name,
			Role:          result.User.Role,
			EmailVerified: result.User.EmailVerified,
		},
		Session: result.Session,
		Notice:  result.Notice,
	}
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

func ToRefreshResponse(result *services.RefreshResult) RefreshResponse {
	return RefreshResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		SessionID:    result.SessionID,
	}
}
