package httptransport

import "mindtrack/internal/domains"

type LoginData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	domains.TokenPair
	User domains.User `json:"user"`
}

type AnswersRequest struct {
	Answers []domains.AnswerInput `json:"answers"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
