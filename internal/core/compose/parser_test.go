package compose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const stackSpec = `
services:
  mysql:
    image: mysql:8.0
    environment:
      MYSQL_ROOT_PASSWORD: ${DB_ROOT_PASSWORD}
      MYSQL_DATABASE: ${DB_NAME}
      MYSQL_USER: ${DB_USER}
      MYSQL_PASSWORD: ${DB_PASSWORD}
    volumes:
      - mysql_data:/var/lib/mysql
    restart: unless-stopped

  redis:
    image: redis:7-alpine
    command: ["redis-server", "--requirepass", "${REDIS_PASSWORD}"]

  app:
    build:
      context: ./docker/app
      dockerfile: Dockerfile
      args:
        PHP_VERSION: "8.3"
    depends_on:
      - mysql
      - redis

  nginx:
    build: ./docker/nginx
    ports:
      - "80:80"
    depends_on:
      - app

  haproxy:
    image: haproxy:2.9
    ports:
      - "8080:8080"
      - "8404:8404"
    depends_on:
      - nginx

volumes:
  mysql_data:
`

var stackEnv = map[string]string{
	"DB_ROOT_PASSWORD": "rootpw",
	"DB_NAME":          "app",
	"DB_USER":          "app",
	"DB_PASSWORD":      "apppw",
	"REDIS_PASSWORD":   "redispw",
}

func parseStack(t *testing.T) *ParsedSpec {
	t.Helper()
	spec, err := ParseComposeSpec(stackSpec, ParseOptions{ProjectName: "webstack", Environment: stackEnv})
	require.NoError(t, err)
	return spec
}

// =============================================================================
// Input Validation Tests
// =============================================================================

func TestParseComposeSpec_EmptyInput(t *testing.T) {
	_, err := ParseComposeSpec("", ParseOptions{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseComposeSpec_WhitespaceOnly(t *testing.T) {
	_, err := ParseComposeSpec("   \n\t", ParseOptions{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseComposeSpec_InvalidYAML(t *testing.T) {
	_, err := ParseComposeSpec("services: [[[", ParseOptions{})
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseComposeSpec_ServiceNoImageOrBuild(t *testing.T) {
	_, err := ParseComposeSpec(`
services:
  app:
    command: ["echo"]
`, ParseOptions{})
	assert.Error(t, err)
}

// =============================================================================
// Stack Parsing Tests
// =============================================================================

func TestParseComposeSpec_Stack(t *testing.T) {
	spec := parseStack(t)

	names := make([]string, 0, len(spec.Services))
	for _, svc := range spec.Services {
		names = append(names, svc.Name)
	}
	assert.Equal(t, []string{"app", "haproxy", "mysql", "nginx", "redis"}, names)
	require.Len(t, spec.Volumes, 1)
	assert.Equal(t, "mysql_data", spec.Volumes[0].Name)
}

func TestParseComposeSpec_Interpolation(t *testing.T) {
	spec := parseStack(t)

	mysql, ok := spec.Service("mysql")
	require.True(t, ok)
	assert.Equal(t, "rootpw", mysql.Environment["MYSQL_ROOT_PASSWORD"])
	assert.Equal(t, "app", mysql.Environment["MYSQL_DATABASE"])

	redis, ok := spec.Service("redis")
	require.True(t, ok)
	assert.Equal(t, []string{"redis-server", "--requirepass", "redispw"}, []string(redis.Command))
}

func TestParseComposeSpec_BuildConfig(t *testing.T) {
	spec := parseStack(t)

	app, _ := spec.Service("app")
	require.NotNil(t, app.Build)
	assert.Equal(t, "./docker/app", app.Build.Context)
	assert.Equal(t, "Dockerfile", app.Build.Dockerfile)
	assert.Equal(t, "8.3", app.Build.Args["PHP_VERSION"])

	nginx, _ := spec.Service("nginx")
	require.NotNil(t, nginx.Build)
	assert.Equal(t, "./docker/nginx", nginx.Build.Context)
}

func TestParseComposeSpec_DependsOnSorted(t *testing.T) {
	spec := parseStack(t)

	app, _ := spec.Service("app")
	assert.Equal(t, []string{"mysql", "redis"}, app.DependsOn)
}

func TestParseComposeSpec_Ports(t *testing.T) {
	spec := parseStack(t)

	haproxy, _ := spec.Service("haproxy")
	require.Len(t, haproxy.Ports, 2)
	assert.Equal(t, uint32(8080), haproxy.Ports[0].Target)
	assert.Equal(t, uint32(8080), haproxy.Ports[0].Published)
}

func TestParseComposeSpec_VolumeMountTypes(t *testing.T) {
	spec := parseStack(t)

	mysql, _ := spec.Service("mysql")
	require.Len(t, mysql.Volumes, 1)
	assert.Equal(t, VolumeMountTypeVolume, mysql.Volumes[0].Type)
	assert.Equal(t, "mysql_data", mysql.Volumes[0].Source)
	assert.Equal(t, RestartUnlessStopped, mysql.Restart)
}

func TestParseComposeSpec_CircularDependency(t *testing.T) {
	_, err := ParseComposeSpec(`
services:
  a:
    image: alpine
    depends_on: [b]
  b:
    image: alpine
    depends_on: [a]
`, ParseOptions{})
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestParseComposeSpec_SecretsUnsupported(t *testing.T) {
	_, err := ParseComposeSpec(`
services:
  app:
    image: alpine
    secrets: [token]
secrets:
  token:
    file: ./token.txt
`, ParseOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}

// =============================================================================
// Lookup Tests
// =============================================================================

func TestParsedSpec_Select(t *testing.T) {
	spec := parseStack(t)

	svcs, err := spec.Select("mysql", "redis")
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	assert.Equal(t, "mysql", svcs[0].Name)
	assert.Equal(t, "redis", svcs[1].Name)
}

func TestParsedSpec_SelectUnknown(t *testing.T) {
	spec := parseStack(t)

	_, err := spec.Select("mysql", "postgres")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	var pErr *ParseError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "services.postgres", pErr.Field)
}

// =============================================================================
// Variable Extraction Tests
// =============================================================================

func TestExtractVariablesFromYAML(t *testing.T) {
	vars := ExtractVariablesFromYAML(stackSpec)
	assert.Equal(t, []string{"DB_ROOT_PASSWORD", "DB_NAME", "DB_USER", "DB_PASSWORD", "REDIS_PASSWORD"}, vars)
}

func TestExtractVariablesFromYAML_DefaultsSkipped(t *testing.T) {
	vars := ExtractVariablesFromYAML("a: ${PORT:-8080}\nb: ${HOST}\nc: ${HOST}")
	assert.Equal(t, []string{"HOST"}, vars)
}

func TestMissingVariables(t *testing.T) {
	missing := MissingVariables(stackSpec, map[string]string{"DB_NAME": "x", "DB_USER": "y"})
	assert.Equal(t, []string{"DB_ROOT_PASSWORD", "DB_PASSWORD", "REDIS_PASSWORD"}, missing)
}

// =============================================================================
// ParseError Tests
// =============================================================================

func TestParseError_Error(t *testing.T) {
	err := NewParseError("services.web.ports[0]", "invalid port", ErrServiceInvalidPort)
	assert.Equal(t, "services.web.ports[0]: invalid port", err.Error())
	assert.ErrorIs(t, err, ErrServiceInvalidPort)
}
