package models

import "time"

const PlatformInstagram = "instagram"

// SocialAccount is a connected external account. The same ExternalAccountID may exist under
// more than one workspace; see resolver for how that is disambiguated.
type SocialAccount struct {
	ID                   int64     `db:"id" json:"id"`
	WorkspaceID          int64     `db:"workspace_id" json:"workspace_id"`
	Platform             string    `db:"platform" json:"platform"`
	ExternalAccountID    string    `db:"external_account_id" json:"external_account_id"`
	ExternalPageID       string    `db:"external_page_id" json:"external_page_id"`
	Username             string    `db:"username" json:"username"`
	AccessTokenEncrypted string    `db:"access_token_encrypted" json:"-"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
