package cmd

import (
	"strings"

	"github.com/abdul-hamid-achik/statusprobe/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/config"
	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	oauth2TokenURLFlag     string
	oauth2ClientIDFlag     string
	oauth2ClientSecretFlag string
	oauth2ScopeFlag        string
	oauth2GrantFlag        string
	oauth2UsernameFlag     string
	oauth2PasswordFlag     string
)

func addAuthFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&oauth2TokenURLFlag, "oauth2-token-url", getEnvString("STATUSPROBE_OAUTH2_TOKEN_URL", ""), "OAuth2 token endpoint; probes send the token as a bearer (env: STATUSPROBE_OAUTH2_TOKEN_URL)")
	flags.StringVar(&oauth2ClientIDFlag, "oauth2-client-id", getEnvString("STATUSPROBE_OAUTH2_CLIENT_ID", ""), "OAuth2 client ID (env: STATUSPROBE_OAUTH2_CLIENT_ID)")
	flags.StringVar(&oauth2ClientSecretFlag, "oauth2-client-secret", getEnvString("STATUSPROBE_OAUTH2_CLIENT_SECRET", ""), "OAuth2 client secret (env: STATUSPROBE_OAUTH2_CLIENT_SECRET)")
	flags.StringVar(&oauth2ScopeFlag, "oauth2-scope", getEnvString("STATUSPROBE_OAUTH2_SCOPE", ""), "Comma-separated OAuth2 scopes (env: STATUSPROBE_OAUTH2_SCOPE)")
	flags.StringVar(&oauth2GrantFlag, "oauth2-grant", getEnvString("STATUSPROBE_OAUTH2_GRANT", ""), "OAuth2 grant: client_credentials or password (env: STATUSPROBE_OAUTH2_GRANT)")
	flags.StringVar(&oauth2UsernameFlag, "oauth2-username", getEnvString("STATUSPROBE_OAUTH2_USERNAME", ""), "Username for the password grant (env: STATUSPROBE_OAUTH2_USERNAME)")
	flags.StringVar(&oauth2PasswordFlag, "oauth2-password", getEnvString("STATUSPROBE_OAUTH2_PASSWORD", ""), "Password for the password grant (env: STATUSPROBE_OAUTH2_PASSWORD)")
}

// authOverrides returns the auth settings given as flags or environment
// variables, nil when there are none.
func authOverrides(cmd *cobra.Command) *config.AuthConfig {
	a := &config.AuthConfig{}
	var set bool
	for name, dst := range map[string]*string{
		"oauth2-token-url":     &a.TokenURL,
		"oauth2-client-id":     &a.ClientID,
		"oauth2-client-secret": &a.ClientSecret,
		"oauth2-grant":         &a.GrantType,
		"oauth2-username":      &a.Username,
		"oauth2-password":      &a.Password,
	} {
		if v, ok := override(cmd, name); ok {
			*dst = v
			set = true
		}
	}
	if v, ok := override(cmd, "oauth2-scope"); ok {
		for _, scope := range strings.Split(v, ",") {
			if scope = strings.TrimSpace(scope); scope != "" {
				a.Scopes = append(a.Scopes, scope)
			}
		}
		set = true
	}
	if !set {
		return nil
	}
	return a
}

// newTokenSource returns nil when no token endpoint is configured. The
// provider caches its token, so one source serves every run.
func newTokenSource(s *config.Config, log logrus.FieldLogger) (runner.TokenSource, error) {
	if s.Auth == nil || s.Auth.TokenURL == "" {
		return nil, nil
	}
	grant, err := oauth2.ParseGrantType(s.Auth.GrantType)
	if err != nil {
		return nil, err
	}
	cfg := &oauth2.Config{
		TokenURL:     s.Auth.TokenURL,
		ClientID:     s.Auth.ClientID,
		ClientSecret: s.Auth.ClientSecret,
		Scopes:       s.Auth.Scopes,
		Username:     s.Auth.Username,
		Password:     s.Auth.Password,
		GrantType:    grant,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := httpclient.NewClient(
		httpclient.WithTimeout(s.Timeout.Std()),
		httpclient.WithValidateSSL(s.GetValidateSSL()),
		httpclient.WithProxy(s.Proxy),
		httpclient.WithLogger(log),
	)
	return oauth2.NewProvider(cfg, oauth2.WithClient(client)), nil
}
