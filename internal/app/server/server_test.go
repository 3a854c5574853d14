package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"

	"github.com/inkflow/inkflow/internal/audit"
	"github.com/inkflow/inkflow/internal/notify"
	"github.com/inkflow/inkflow/internal/signing/engine"
	"github.com/inkflow/inkflow/internal/signing/storage/sqlite"
	"github.com/inkflow/inkflow/internal/signing/token"
	streamsync "github.com/inkflow/inkflow/internal/sync"
)

const (
	testGrantSecret   = "test-grant-secret"
	testGrantIssuer   = "inkflow"
	testGrantAudience = "inkflow-dashboard"
	testSenderEmail   = "avery@example.com"
)

func newTestHandler(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	tokens, err := token.NewService(store, store, time.Now)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	dispatcher, err := notify.NewDispatcher(store, notify.LogSender{}, time.Now)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	hub := streamsync.NewHub()
	eng, err := engine.New(engine.Config{
		Requests:   store,
		Tokens:     tokens,
		Audit:      audit.NewEmitter(store),
		Dispatcher: dispatcher,
		Publisher:  hub,
		Now:        time.Now,
		BaseURL:    "http://sign.test",
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	handler := newHandler(handlerDeps{
		engine: eng,
		tokens: tokens,
		hub:    hub,
		grants: GrantConfig{
			Secret:   []byte(testGrantSecret),
			Issuer:   testGrantIssuer,
			Audience: testGrantAudience,
		},
	})
	return handler, eng
}

func mintGrant(t *testing.T, senderEmail string) string {
	t.Helper()
	claims := subscribeGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testGrantIssuer,
			Audience:  jwt.ClaimStrings{testGrantAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SenderEmail: senderEmail,
	}
	grant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testGrantSecret))
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	return grant
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, grant string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if grant != "" {
		req.Header.Set("Authorization", "Bearer "+grant)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func createPayload() createRequestPayload {
	return createRequestPayload{
		DocumentName: "Lease Agreement",
		SenderName:   "Avery Quinn",
		Signers: []createSignerInput{
			{Name: "Blair Ono", Email: "blair@example.com", Order: 1},
			{Name: "Casey Rios", Email: "casey@example.com", Order: 2},
		},
		Fields: []createFieldInput{
			{SignerOrder: 1, Type: "signature", Label: "Tenant"},
			{SignerOrder: 2, Type: "signature", Label: "Landlord"},
		},
		OrderingMode: "sequential",
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return envelope.Error.Code
}

func TestHealthProbe(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodGet, "/up", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Fatalf("body = %q, want OK", body)
	}
}

func TestManagementAPIRequiresGrant(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodPost, "/api/requests", "", createPayload())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "SUBSCRIBE_GRANT_INVALID" {
		t.Fatalf("error code = %q", code)
	}
}

func TestCreateResponseCarriesSignerTokens(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	grant := mintGrant(t, testSenderEmail)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/requests", grant, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if len(created.Signers) != 2 {
		t.Fatalf("signers = %d, want 2", len(created.Signers))
	}
	for _, signer := range created.Signers {
		if signer.Token == "" {
			t.Fatalf("signer %s missing token on create response", signer.ID)
		}
	}
	if created.Signers[0].Token == created.Signers[1].Token {
		t.Fatal("signer tokens are not distinct")
	}

	// A signer token from the create body resolves to the signing page.
	pageResp, _ := doJSON(t, srv, http.MethodGet, "/s/"+created.Signers[0].Token, "", nil)
	if pageResp.StatusCode != http.StatusOK {
		t.Fatalf("signer page via created token = %d, want 200", pageResp.StatusCode)
	}

	// Later reads omit the tokens.
	resp, body = doJSON(t, srv, http.MethodGet, "/api/requests/"+created.ID, grant, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", resp.StatusCode, body)
	}
	var fetched requestView
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	for _, signer := range fetched.Signers {
		if signer.Token != "" {
			t.Fatalf("signer %s token leaked on read", signer.ID)
		}
	}
}

func TestCreateAndSignOverHTTP(t *testing.T) {
	handler, eng := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	grant := mintGrant(t, testSenderEmail)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/requests", grant, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Status != "pending" || len(created.Signers) != 2 {
		t.Fatalf("created view = %+v", created)
	}

	resp, body = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/deliver", grant, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deliver status = %d: %s", resp.StatusCode, body)
	}

	// Signer routes authenticate by token; read them back from storage.
	stored, err := eng.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("load stored request: %v", err)
	}
	first, _ := stored.SignerByEmail("blair@example.com")
	second, _ := stored.SignerByEmail("casey@example.com")

	resp, body = doJSON(t, srv, http.MethodGet, "/s/"+first.Token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signer view status = %d: %s", resp.StatusCode, body)
	}
	var page signerPageView
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode signer view: %v", err)
	}
	if len(page.Fields) != 1 || page.Fields[0].Label != "Tenant" {
		t.Fatalf("signer view shows foreign fields: %+v", page.Fields)
	}

	resp, body = doJSON(t, srv, http.MethodPost, "/s/"+first.Token+"/open", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open status = %d: %s", resp.StatusCode, body)
	}

	values := map[string]string{page.Fields[0].ID: "Blair Ono"}
	resp, body = doJSON(t, srv, http.MethodPost, "/s/"+first.Token+"/sign", "", signPayload{Values: values})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first sign status = %d: %s", resp.StatusCode, body)
	}

	stored, err = eng.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	secondField := stored.FieldsForSigner(second)
	if len(secondField) != 1 {
		t.Fatalf("second signer fields = %d, want 1", len(secondField))
	}
	resp, body = doJSON(t, srv, http.MethodPost, "/s/"+second.Token+"/sign", "",
		signPayload{Values: map[string]string{secondField[0].ID: "Casey Rios"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second sign status = %d: %s", resp.StatusCode, body)
	}
	var finalPage signerPageView
	if err := json.Unmarshal(body, &finalPage); err != nil {
		t.Fatalf("decode final signer view: %v", err)
	}
	if finalPage.Status != "completed" {
		t.Fatalf("final status = %q, want completed", finalPage.Status)
	}

	// Completion invalidates every signer link.
	resp, body = doJSON(t, srv, http.MethodGet, "/s/"+first.Token, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("token after completion status = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/api/requests/"+created.ID+"/download", grant, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d: %s", resp.StatusCode, body)
	}
	var download downloadView
	if err := json.Unmarshal(body, &download); err != nil {
		t.Fatalf("decode download: %v", err)
	}
	for _, field := range download.Fields {
		if field.Value == "" {
			t.Fatalf("download field %s has no value", field.ID)
		}
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/api/requests/"+created.ID+"/audit", grant, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status = %d: %s", resp.StatusCode, body)
	}
	var trail []auditEventView
	if err := json.Unmarshal(body, &trail); err != nil {
		t.Fatalf("decode audit trail: %v", err)
	}
	if len(trail) == 0 {
		t.Fatal("expected audit events")
	}
	if trail[0].EventName != "request.created" {
		t.Fatalf("first audit event = %q", trail[0].EventName)
	}
}

func TestSignerLookupFallback(t *testing.T) {
	handler, eng := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	grant := mintGrant(t, testSenderEmail)

	_, body := doJSON(t, srv, http.MethodPost, "/api/requests", grant, createPayload())
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if _, err := eng.Deliver(context.Background(), created.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	resp, body := doJSON(t, srv, http.MethodGet, "/sign/"+created.ID+"?email=blair@example.com", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup status = %d: %s", resp.StatusCode, body)
	}
	var page signerPageView
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode lookup: %v", err)
	}
	if page.Signer.Email != "blair@example.com" {
		t.Fatalf("lookup signer = %+v", page.Signer)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/sign/"+created.ID+"?email=nobody@example.com", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown email lookup status = %d: %s", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "TOKEN_NOT_FOUND" {
		t.Fatalf("unknown email error code = %q", code)
	}
}

func TestOwnershipHidesForeignRequests(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	_, body := doJSON(t, srv, http.MethodPost, "/api/requests", mintGrant(t, testSenderEmail), createPayload())
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	resp, body := doJSON(t, srv, http.MethodGet, "/api/requests/"+created.ID, mintGrant(t, "mallory@example.com"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get status = %d: %s", resp.StatusCode, body)
	}
}

func TestStateConflictMapsToHTTPConflict(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	grant := mintGrant(t, testSenderEmail)

	_, body := doJSON(t, srv, http.MethodPost, "/api/requests", grant, createPayload())
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp, body := doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/void", grant, voidPayload{Reason: "terms changed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("void status = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/deliver", grant, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("deliver after void status = %d: %s", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "STATE_CONFLICT" {
		t.Fatalf("error code = %q", code)
	}
}

func TestWebsocketHelloAndUpdate(t *testing.T) {
	handler, eng := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	grant := mintGrant(t, testSenderEmail)

	_, body := doJSON(t, srv, http.MethodPost, "/api/requests", grant, createPayload())
	var created requestView
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?grant=" + grant
	conn, err := websocket.Dial(wsURL, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}

	decoder := json.NewDecoder(conn)
	var hello streamsync.Frame
	if err := decoder.Decode(&hello); err != nil {
		t.Fatalf("read hello frame: %v", err)
	}
	if hello.Type != streamsync.FrameTypeHello || hello.SenderEmail != testSenderEmail {
		t.Fatalf("hello frame = %+v", hello)
	}

	if _, err := eng.Deliver(context.Background(), created.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	var update streamsync.Frame
	if err := decoder.Decode(&update); err != nil {
		t.Fatalf("read update frame: %v", err)
	}
	if update.Type != streamsync.FrameTypeUpdate {
		t.Fatalf("update frame type = %q", update.Type)
	}
	if update.Update.RequestID != created.ID || update.Update.Status != "pending" {
		t.Fatalf("update = %+v", update.Update)
	}
}

func TestWebsocketRejectsMissingGrant(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestValidateSubscribeGrantFailures(t *testing.T) {
	cfg := GrantConfig{
		Secret:   []byte(testGrantSecret),
		Issuer:   testGrantIssuer,
		Audience: testGrantAudience,
	}

	expired := subscribeGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testGrantIssuer,
			Audience:  jwt.ClaimStrings{testGrantAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		SenderEmail: testSenderEmail,
	}
	expiredGrant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte(testGrantSecret))
	if err != nil {
		t.Fatalf("mint expired grant: %v", err)
	}

	wrongIssuer := expired
	wrongIssuer.Issuer = "someone-else"
	wrongIssuer.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	wrongIssuerGrant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wrongIssuer).SignedString([]byte(testGrantSecret))
	if err != nil {
		t.Fatalf("mint wrong issuer grant: %v", err)
	}

	forged := subscribeGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testGrantIssuer,
			Audience:  jwt.ClaimStrings{testGrantAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SenderEmail: testSenderEmail,
	}
	forgedGrant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forged).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("mint forged grant: %v", err)
	}

	cases := []struct {
		name  string
		grant string
	}{
		{name: "empty", grant: ""},
		{name: "garbage", grant: "not-a-jwt"},
		{name: "expired", grant: expiredGrant},
		{name: "wrong issuer", grant: wrongIssuerGrant},
		{name: "forged signature", grant: forgedGrant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateSubscribeGrant(tc.grant, cfg); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}

	valid := forged
	validGrant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, valid).SignedString([]byte(testGrantSecret))
	if err != nil {
		t.Fatalf("mint valid grant: %v", err)
	}
	senderEmail, err := ValidateSubscribeGrant(validGrant, cfg)
	if err != nil {
		t.Fatalf("validate grant: %v", err)
	}
	if senderEmail != testSenderEmail {
		t.Fatalf("sender email = %q", senderEmail)
	}
}

func TestNewServerRequiresGrantSecret(t *testing.T) {
	_, err := NewServer(RuntimeConfig{
		HTTPAddr: ":0",
		DBPath:   filepath.Join(t.TempDir(), fmt.Sprintf("srv-%d.db", time.Now().UnixNano())),
	})
	if err == nil {
		t.Fatal("expected error for missing grant secret")
	}
}
