package models

// UploadClaims is the payload of the bearer token presented at intake.
// Subject carries the owner key used to build output paths.
type UploadClaims struct {
	Issuer    string `json:"iss"` // optional
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
