package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bookleaf-dev",
		"API_AUTH_ACCESS_SECRET":   "access-secret",
		"API_AUTH_REFRESH_SECRET":  "refresh-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.AccessTTL != defaultAccessTokenTTL {
		t.Errorf("unexpected default access ttl: %s", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != defaultRefreshTokenTTL {
		t.Errorf("unexpected default refresh ttl: %s", cfg.Auth.RefreshTTL)
	}
	if cfg.Auth.Issuer != defaultTokenIssuer {
		t.Errorf("unexpected default issuer: %s", cfg.Auth.Issuer)
	}
	if cfg.Auth.BcryptCost != defaultBcryptCost {
		t.Errorf("unexpected default bcrypt cost: %d", cfg.Auth.BcryptCost)
	}
	if cfg.Events.ProjectID != "bookleaf-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIRESTORE_PROJECT_ID":         "bookleaf-prod",
		"API_FIRESTORE_EMULATOR_HOST":      "localhost:8200",
		"API_AUTH_ACCESS_SECRET":           "secret://auth/access",
		"API_AUTH_REFRESH_SECRET":          "secret://auth/refresh",
		"API_AUTH_ACCESS_TTL":              "10m",
		"API_AUTH_REFRESH_TTL":             "720h",
		"API_AUTH_ISSUER":                  "bookleaf-prod-api",
		"API_AUTH_BCRYPT_COST":             "14",
		"API_EVENTS_PROJECT_ID":            "bookleaf-events",
		"API_EVENTS_ORDER_TOPIC":           "order-events",
		"API_SECURITY_ENVIRONMENT":         "prod",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	secrets := map[string]string{
		"secret://auth/access":  "resolved-access",
		"secret://auth/refresh": "resolved-refresh",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.AccessSecret != "resolved-access" {
		t.Errorf("expected resolved access secret, got %s", cfg.Auth.AccessSecret)
	}
	if cfg.Auth.RefreshSecret != "resolved-refresh" {
		t.Errorf("expected resolved refresh secret, got %s", cfg.Auth.RefreshSecret)
	}
	if cfg.Auth.AccessTTL != 10*time.Minute {
		t.Errorf("unexpected access ttl: %s", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.BcryptCost != 14 {
		t.Errorf("unexpected bcrypt cost: %d", cfg.Auth.BcryptCost)
	}
	if cfg.Events.ProjectID != "bookleaf-events" {
		t.Errorf("unexpected events project %s", cfg.Events.ProjectID)
	}
	if cfg.Events.OrderTopic != "order-events" {
		t.Errorf("unexpected order topic %s", cfg.Events.OrderTopic)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=bookleaf-dot\nAPI_AUTH_ACCESS_SECRET=dot-access\nAPI_AUTH_REFRESH_SECRET=dot-refresh\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "bookleaf-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bookleaf-dev",
		"API_AUTH_ACCESS_SECRET":   "secret://missing",
		"API_AUTH_REFRESH_SECRET":  "refresh-secret",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bookleaf-dev",
		"API_AUTH_ACCESS_SECRET":   "access-secret",
		"API_AUTH_REFRESH_SECRET":  "",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Auth.RefreshSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	// Validation fires before the required-secret check when the field is empty.
	var validation *ValidationError
	var missing *MissingSecretsError
	if !errors.As(err, &validation) && !errors.As(err, &missing) {
		t.Fatalf("expected ValidationError or MissingSecretsError, got %T", err)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bookleaf-dev",
		"API_AUTH_ACCESS_SECRET":   "sm://auth/access",
		"API_AUTH_REFRESH_SECRET":  "refresh-secret",
	}

	secrets := map[string]string{
		"secret://auth/access": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.AccessSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Auth.AccessSecret)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
}
