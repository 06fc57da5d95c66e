package config

import (
	"errors"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbolis/dcforms/pos"
	"github.com/spf13/pflag"
)

// Editor redirect targets after a popup save.
const (
	RedirectVisual  = "visual"
	RedirectClassic = "classic"
	RedirectOrigin  = "origin"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	NonceTTL    time.Duration
	Debug       bool

	POS pos.Settings

	// Which popup editor a save redirects to: visual, classic or origin.
	PopupEditorRedirect string
	// Tracking events accepted per second per client address.
	TrackRate float64
}

type flagValues struct {
	host string
	port uint
	ttl  uint
}

// Bind registers every configuration flag on fs. The returned function must be called
// after fs has been parsed; it applies environment fallbacks and validates the result.
func Bind(fs *pflag.FlagSet) (cfg *Config, finish func() error) {
	cfg = &Config{}
	var v flagValues

	fs.StringVar(&v.host, "host", "0.0.0.0", "listen host name")
	fs.UintVar(&v.port, "port", 8080, "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", "dcforms.sqlite", "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for token and nonce signing")
	fs.UintVar(&v.ttl, "token-ttl", 120, "admin token TTL in seconds")
	fs.DurationVar(&cfg.NonceTTL, "nonce-ttl", 12*time.Hour, "lifetime of AJAX nonces")
	fs.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")

	fs.StringVar(&cfg.POS.System, "pos-system", "", "active POS vendor (smrt, spot, cleancloud)")
	fs.StringVar(&cfg.POS.SMRT.GraphQLURL, "smrt-graphql-url", "", "SMRT GraphQL endpoint")
	fs.StringVar(&cfg.POS.SMRT.APIKey, "smrt-api-key", "", "SMRT API key (Bearer)")
	fs.StringVar(&cfg.POS.SMRT.StoreID, "smrt-store-id", "", "SMRT store id")
	fs.StringVar(&cfg.POS.SMRT.AgentID, "smrt-agent-id", "", "SMRT agent id used for new customers")
	fs.StringVar(&cfg.POS.SMRT.RouteID, "smrt-route-id", "", "SMRT delivery route id")
	fs.StringVar(&cfg.POS.SPOT.BaseURL, "spot-base-url", "", "SPOT REST base URL")
	fs.StringVar(&cfg.POS.SPOT.Username, "spot-username", "", "SPOT username")
	fs.StringVar(&cfg.POS.SPOT.LicenseKey, "spot-license-key", "", "SPOT license key")
	fs.StringVar(&cfg.POS.SPOT.AccountKey, "spot-account-key", "", "SPOT account key")
	fs.StringVar(&cfg.POS.SPOT.StoreID, "spot-store-id", "", "SPOT store id")
	fs.StringVar(&cfg.POS.SPOT.AgentID, "spot-agent-id", "", "SPOT agent id used for new customers")
	fs.StringVar(&cfg.POS.SPOT.RouteID, "spot-route-id", "", "SPOT delivery route id")
	fs.StringVar(&cfg.POS.CleanCloud.APIToken, "cleancloud-api-token", "", "CleanCloud API token")

	fs.StringVar(&cfg.PopupEditorRedirect, "popup-editor-redirect", RedirectOrigin, "editor to return to after saving a popup (visual, classic, origin)")
	fs.Float64Var(&cfg.TrackRate, "track-rate", 5, "popup tracking events per second per client")

	finish = func() error {
		applyEnv(fs)
		cfg.Addr = net.JoinHostPort(v.host, strconv.Itoa(int(v.port)))
		cfg.TokenTTL = time.Duration(v.ttl) * time.Second
		return cfg.validate()
	}
	return
}

// LoadDotEnv loads a .env file if present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnv fills every flag that was not set on the command line from DCF_<FLAG_NAME>.
func applyEnv(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if value, ok := os.LookupEnv(EnvName(f.Name)); ok && value != "" {
			f.Value.Set(value)
		}
	})
}

func EnvName(flagName string) string {
	return "DCF_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func (cfg *Config) validate() error {
	if cfg.TokenSecret == "" {
		return errors.New("missing parameter -token-secret")
	}
	switch cfg.PopupEditorRedirect {
	case RedirectVisual, RedirectClassic, RedirectOrigin:
	default:
		return errors.New("invalid -popup-editor-redirect: " + cfg.PopupEditorRedirect)
	}
	if cfg.TrackRate <= 0 {
		return errors.New("-track-rate must be positive")
	}
	return nil
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
