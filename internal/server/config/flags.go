package config

import (
	"flag"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-m", "-d", "-s", "-t", "-r", "-k", "-v", "-i", "-g", "-w", "-n",
	"-redis", "-redis-password", "-nats", "-subject", "-region", "-l",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        gRPC bind address (e.g., ":50051")
//	-m string        metrics bind address
//	-d string        PostgreSQL DSN
//	-s string        JWT HMAC secret key
//	-t duration      access token validity
//	-r duration      refresh token validity
//	-k duration      clock skew leeway
//	-v duration      verification code ttl
//	-i duration      resend interval
//	-g duration      grace period for unverified accounts
//	-w duration      sweep interval (0 disables the in-process scheduler)
//	-n int           sweep batch size
//	-redis string    Redis address for attempt limiting
//	-nats string     NATS URL for code delivery
//	-subject string  NATS subject for code delivery
//	-region string   default phone region
//	-l string        log level
//
// Unknown arguments are filtered out first with flagx.FilterArgs, so the
// config file flag and other components' flags do not collide.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port to serve metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.DurationVar(&config.ClockSkew, "k", config.ClockSkew, "clock skew leeway")
	fs.DurationVar(&config.VerificationCodeTTL, "v", config.VerificationCodeTTL, "verification code ttl")
	fs.DurationVar(&config.ResendInterval, "i", config.ResendInterval, "minimum interval between codes")
	fs.DurationVar(&config.UnverifiedGracePeriod, "g", config.UnverifiedGracePeriod, "grace period for unverified accounts")
	fs.DurationVar(&config.SweepInterval, "w", config.SweepInterval, "sweep interval")
	fs.IntVar(&config.SweepBatchSize, "n", config.SweepBatchSize, "sweep batch size")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "redis-password", config.RedisPassword, "redis password")
	fs.StringVar(&config.NATSURL, "nats", config.NATSURL, "nats url")
	fs.StringVar(&config.DeliverySubject, "subject", config.DeliverySubject, "delivery subject")
	fs.StringVar(&config.DefaultPhoneRegion, "region", config.DefaultPhoneRegion, "default phone region")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(flagx.FilterArgs(args, knownFlags))
}
