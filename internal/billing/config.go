package billing

// Config holds Stripe credentials. Both may be empty at boot: webhook
// requests answer 503 and checkout calls fail until they are set.
type Config struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}
