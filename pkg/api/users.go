package api

// User is the public view of a principal.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Managed     bool   `json:"managed"`
}

// ProxyTokenRequest asks the server to mint a delegated token for a Discord user.
type ProxyTokenRequest struct {
	DiscordID   string `json:"discord_id"`
	DisplayName string `json:"display_name"`
}

// ProxyTokenResponse carries a freshly minted bearer token.
type ProxyTokenResponse struct {
	Token string `json:"token"`
}

// DiscordUserRequest upserts a principal linked to a Discord account.
type DiscordUserRequest struct {
	DiscordID     string `json:"discord_id"`
	DisplayName   string `json:"display_name"`
	GenerateToken bool   `json:"generate_token"`
}

// DiscordUserResponse is returned by POST /users/discord.
type DiscordUserResponse struct {
	User        User    `json:"user"`
	DiscordID   string  `json:"discord_id"`
	AccessToken *string `json:"access_token,omitempty"`
}

// WhoAmIResponse describes the principal a request authenticated as.
type WhoAmIResponse struct {
	User   User   `json:"user"`
	Scheme string `json:"scheme"`
}
