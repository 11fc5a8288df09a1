package dtos

// ConnectionConfigRequest mirrors the engine-specific connection settings.
// File engines send file_path only; server engines send host/database plus
// optional credentials.
type ConnectionConfigRequest struct {
	FilePath string  `json:"file_path,omitempty"`
	Host     string  `json:"host,omitempty"`
	Port     *string `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Database string  `json:"database,omitempty"`
	UseSSL   bool    `json:"use_ssl,omitempty"`
	SSLMode  *string `json:"ssl_mode,omitempty"`
}

type CreateSessionRequest struct {
	ConnectionID string                  `json:"connection_id" binding:"required"`
	EngineKind   string                  `json:"engine_kind" binding:"required"`
	Config       ConnectionConfigRequest `json:"config" binding:"required"`
}

type CreateSessionResponse struct {
	SessionToken   string `json:"session_token"`
	ReadOnlyStatus string `json:"read_only_status"`
}

type SessionStatusResponse struct {
	ConnectionID string `json:"connection_id"`
	Active       bool   `json:"active"`
}
