package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cityofaustin/moped-claimsx"
	"github.com/cityofaustin/moped-claimsx/internal/logging"
)

// envDefaults maps flag names to the environment variables that seed them.
var envDefaults = map[string]string{
	"region":        "COGNITO_REGION",
	"user-pool-id":  "COGNITO_USERPOOL_ID",
	"client-id":     "COGNITO_APP_CLIENT_ID",
	"client-secret": "COGNITO_APP_CLIENT_SECRET",
	"domain":        "COGNITO_DOMAIN",
	"scope":         "COGNITO_SCOPE",
	"token":         "COGNITO_TOKEN",
}

func main() {
	envPath := defaultEnvPath()
	if err := loadEnvFile(envPath); err != nil {
		log.Printf("warning: load %s: %v", envPath, err)
	}

	values := make(map[string]*string, len(envDefaults))
	for name, env := range envDefaults {
		values[name] = flag.String(name, os.Getenv(env), fmt.Sprintf("(env %s)", env))
	}
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for token fetch and JWKS download")
	envFlag := flag.String("env", envPath, "Path to .env file")
	verbose := flag.Bool("v", false, "Log verification steps")
	flag.Parse()

	if *envFlag != "" && *envFlag != envPath {
		if err := loadEnvFile(*envFlag); err != nil {
			log.Printf("warning: load %s: %v", *envFlag, err)
		}
		reloadDefaults(values)
	}

	if *values["user-pool-id"] == "" || *values["client-id"] == "" {
		flag.Usage()
		log.Fatal("user-pool-id and client-id are required (via flag, .env, or environment variables)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token := strings.TrimPrefix(*values["token"], "Bearer ")
	if token == "" {
		if *values["domain"] == "" {
			log.Fatal("either token or domain is required")
		}
		provider := claimsx.NewProvider(claimsx.ProviderConfig{
			TokenURL:     claimsx.CognitoTokenURL(*values["domain"], *values["region"]),
			ClientID:     *values["client-id"],
			ClientSecret: *values["client-secret"],
			Scopes:       strings.Fields(*values["scope"]),
		})
		tok, err := provider.Token(ctx)
		if err != nil {
			log.Fatalf("failed to obtain access token via client credentials: %v (check the app client secret and allowed scopes)", err)
		}
		token = tok
		log.Println("acquired Cognito access token via client credentials")
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, "console")
	defer func() { _ = logger.Sync() }()

	cfg := claimsx.VerifierConfig{
		Region:      *values["region"],
		UserPoolID:  *values["user-pool-id"],
		ClientID:    *values["client-id"],
		LoadJWKS:    true,
		HTTPTimeout: *timeout,
	}
	keys, err := claimsx.NewKeyProvider(cfg, claimsx.WithKeyProviderLogger(logger))
	if err != nil {
		log.Fatalf("load jwks: %v", err)
	}
	verifier, err := claimsx.NewVerifier(cfg, keys, claimsx.WithVerifierLogger(logger))
	if err != nil {
		log.Fatalf("create verifier: %v", err)
	}

	result := verifier.Verify(ctx, token)
	if !result.OK() {
		log.Fatalf("validation failed at %s: %v", result.Stage, result.Err())
	}
	printClaims(cfg.Issuer(), result.Value())
}

func printClaims(issuer string, claims claimsx.TokenClaims) {
	id := claimsx.Identity(claims)
	fmt.Println("== Cognito Token Verified ==")
	fmt.Printf("issuer       : %s\n", issuer)
	fmt.Printf("subject      : %s\n", id.Subject())
	if email := id.Email(); email != "" {
		fmt.Printf("email        : %s\n", email)
		fmt.Printf("coa_staff    : %t\n", claimsx.IsCOAStaff(email))
	}
	fmt.Printf("valid_user   : %t\n", claimsx.IsValidUser(id))
	if exp, ok := claims["exp"].(float64); ok {
		fmt.Printf("expires_at   : %s\n", time.Unix(int64(exp), 0).UTC().Format(time.RFC3339))
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("claims:")
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, claims[k])
	}
}

func defaultEnvPath() string {
	if path := os.Getenv("CLAIMSX_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Printf("warning: invalid line %d in %s", lineNum, filepath.Base(path))
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			log.Printf("warning: set env %s: %v", key, err)
		}
	}
	return scanner.Err()
}

func reloadDefaults(values map[string]*string) {
	for name, v := range values {
		if *v == "" {
			*v = os.Getenv(envDefaults[name])
		}
	}
}
