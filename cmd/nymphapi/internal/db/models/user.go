package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Identity providers linked to users.
const (
	ProviderDiscord = "discord"
	ProviderMTLS    = "mtls"
)

// User is a principal: an end user or, when Managed is set, a trusted service.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          int64     `bun:"id,pk,autoincrement"`
	DisplayName string    `bun:"display_name,notnull"`
	Managed     bool      `bun:"managed,notnull,default:false"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// APIKey is a service credential. Only the SHA256 hex of the key is stored.
type APIKey struct {
	bun.BaseModel `bun:"table:api_keys,alias:ak"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	Hash      string    `bun:"hash,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Identity links a user to an account in an external system
// (a Discord snowflake, a client certificate common name).
//
// (provider, external_id) is unique, which is what keeps concurrent
// first-contact requests from creating duplicate users.
type Identity struct {
	bun.BaseModel `bun:"table:user_identities,alias:ui"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     int64     `bun:"user_id,notnull"`
	Provider   string    `bun:"provider,notnull"`
	ExternalID string    `bun:"external_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`

	User *User `bun:"rel:belongs-to,join:user_id=id"`
}
