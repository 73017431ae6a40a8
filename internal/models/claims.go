package models

import "github.com/golang-jwt/jwt/v5"

// Claims defines the structure of the operator API's JWT claims.
type Claims struct {
	WorkspaceID int64  `json:"workspace_id"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}
