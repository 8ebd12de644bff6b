package types

import "errors"

// Config holds server parameters for Backend.Attach and the serve command.
type Config struct {
	ListenAddr    string   `json:"listen_addr" yaml:"listen_addr"`
	DataDir       string   `json:"data_dir" yaml:"data_dir"`
	AdminToken    string   `json:"admin_token" yaml:"admin_token"`
	SessionTokens []string `json:"session_tokens" yaml:"session_tokens"`
}

// Config validation errors.
var (
	ErrListenAddrEmpty = errors.New("listen_addr must not be empty")
	ErrAdminTokenEmpty = errors.New("admin_token must not be empty")
)

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return ErrListenAddrEmpty
	}
	if c.AdminToken == "" {
		return ErrAdminTokenEmpty
	}
	return nil
}
