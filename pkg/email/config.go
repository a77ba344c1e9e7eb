package email

// Config holds email service configuration.
// APIKey may be empty at boot: the resulting sender fails every call with
// ErrMissingAPIKey instead of preventing the service from starting.
// When DevDir is set, messages are written to disk instead of sent.
type Config struct {
	APIKey       string `env:"EMAIL_API_KEY"`
	AccountToken string `env:"EMAIL_ACCOUNT_TOKEN"`
	Sender       string `env:"EMAIL_SENDER" envDefault:"149Psi <nao-responda@149psi.com.br>"`
	ReplyTo      string `env:"EMAIL_REPLY_TO"`
	DevDir       string `env:"EMAIL_DEV_DIR"`
}
