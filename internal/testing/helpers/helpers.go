package helpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/pkg/jwt"
)

// TestJWTSecret signs every token made by NewTestJWTService
const TestJWTSecret = "hiretrack-test-secret"

// ============================================================================
// JWT Helpers
// ============================================================================

// NewTestJWTService returns an HS256 service so tests skip RSA key generation
func NewTestJWTService(t *testing.T) *jwt.Service {
	t.Helper()
	svc, err := jwt.NewService(jwt.Config{
		Secret:         TestJWTSecret,
		Issuer:         "hiretrack-test",
		ExpirationMins: 60,
	})
	if err != nil {
		t.Fatalf("helpers: failed to create JWT service: %v", err)
	}
	return svc
}

// GenerateToken signs a valid token for user
func GenerateToken(t *testing.T, svc *jwt.Service, user *model.User) string {
	t.Helper()
	token, err := svc.Sign(claimsFor(user, time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("helpers: failed to sign token: %v", err)
	}
	return token
}

// GenerateExpiredToken signs a token that expired an hour ago
func GenerateExpiredToken(t *testing.T, svc *jwt.Service, user *model.User) string {
	t.Helper()
	token, err := svc.Sign(claimsFor(user, time.Now().Add(-2*time.Hour), time.Hour))
	if err != nil {
		t.Fatalf("helpers: failed to sign token: %v", err)
	}
	return token
}

func claimsFor(user *model.User, issued time.Time, ttl time.Duration) jwt.Claims {
	return jwt.Claims{
		Subject:   user.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		IssuedAt:  issued.Unix(),
		NotBefore: issued.Unix(),
		ExpiresAt: issued.Add(ttl).Unix(),
	}
}

// ============================================================================
// HTTP Request Helpers
// ============================================================================

// RequestBuilder helps construct HTTP requests for testing
type RequestBuilder struct {
	t       *testing.T
	method  string
	path    string
	body    any
	headers map[string]string
}

// NewRequest creates a new request builder
func NewRequest(t *testing.T, method, path string) *RequestBuilder {
	t.Helper()
	return &RequestBuilder{
		t:       t,
		method:  method,
		path:    path,
		headers: make(map[string]string),
	}
}

// WithBody sets the request body (will be JSON encoded)
func (rb *RequestBuilder) WithBody(body any) *RequestBuilder {
	rb.body = body
	return rb
}

// WithHeader adds a header to the request
func (rb *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	rb.headers[key] = value
	return rb
}

// WithToken adds a bearer token
func (rb *RequestBuilder) WithToken(token string) *RequestBuilder {
	if token != "" {
		rb.headers["Authorization"] = "Bearer " + token
	}
	return rb
}

// Build creates the HTTP request
func (rb *RequestBuilder) Build() *http.Request {
	rb.t.Helper()

	var bodyReader io.Reader
	if rb.body != nil {
		bodyBytes, err := json.Marshal(rb.body)
		if err != nil {
			rb.t.Fatalf("helpers: failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(rb.method, rb.path, bodyReader)
	if rb.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range rb.headers {
		req.Header.Set(k, v)
	}
	return req
}

// Do builds the request and serves it through h
func (rb *RequestBuilder) Do(h http.Handler) *httptest.ResponseRecorder {
	rb.t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, rb.Build())
	return rr
}

// ============================================================================
// Response Assertion Helpers
// ============================================================================

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, resp *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if resp.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, resp.Code, resp.Body.String())
	}
}

// DecodeProblem decodes an RFC 9457 Problem Details body, checking the content type
func DecodeProblem(t *testing.T, resp *httptest.ResponseRecorder) model.ProblemDetails {
	t.Helper()
	if ct := resp.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type application/problem+json, got %q", ct)
	}
	var problem model.ProblemDetails
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("helpers: failed to decode problem details: %v (%s)", err, resp.Body.String())
	}
	return problem
}

// AssertProblemField checks status and that the first field error names field
func AssertProblemField(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int, field string) {
	t.Helper()
	AssertStatus(t, resp, expectedStatus)
	problem := DecodeProblem(t, resp)
	if len(problem.Errors) == 0 || problem.Errors[0].Field != field {
		t.Errorf("expected field error on %q, got %+v", field, problem.Errors)
	}
}

// DecodeData unwraps the {data, _links} envelope into v and returns the links
func DecodeData(t *testing.T, resp *httptest.ResponseRecorder, v any) map[string]string {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage   `json:"data"`
		Links map[string]string `json:"_links"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("helpers: failed to decode envelope: %v (%s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("helpers: failed to decode data: %v", err)
	}
	return envelope.Links
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
