package interfaces

// Authenticator produces a usable access token for one broker. The browser
// OAuth and OTP exchanges happen outside this process; by the time the
// pipeline runs, tokens are available through the environment or a token file.
type Authenticator interface {
	AccessToken() (string, error)
	TokenValid() bool
}
