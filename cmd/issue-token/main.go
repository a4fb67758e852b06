package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"boxoffice/internal/auth"
	"boxoffice/internal/config"
	"boxoffice/pkg/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default: $BOXOFFICE_CONFIG or ./config.yaml)")
		operator   = flag.String("operator", "", "operator name recorded in the token")
		scopes     = flag.String("scopes", auth.ScopeReconcile, "comma-separated scopes")
		ttl        = flag.Duration("ttl", 0, "token lifetime (default: auth.jwt_ttl)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTTTL,
	}
	if *ttl > 0 {
		tokens.Duration = *ttl
	}

	var list []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}

	tok, exp, err := tokens.Sign(*operator, list...)
	if err != nil {
		logging.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(tok)
	logging.Info().Str("operator", *operator).Strs("scopes", list).Str("expires", exp.Format(time.RFC3339)).Msg("token issued")
}
