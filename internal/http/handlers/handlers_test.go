package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"genie/internal/genai"
	"genie/internal/http/handlers"
	"genie/internal/http/httpapi"
	"genie/internal/images"
	"genie/internal/share"
	"genie/internal/storage"
)

type stubObjectStore struct {
	key  string
	data []byte
	err  error
}

func (s *stubObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.key = key
	s.data = data
	return s.err
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubShareDB struct {
	insertErr error
	record    *share.Record
	execCalls int
}

func (s *stubShareDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "INSERT INTO shared_images") {
		return stubRow{scan: func(dest ...any) error {
			if s.insertErr != nil {
				return s.insertErr
			}
			if ts, ok := dest[0].(*time.Time); ok {
				*ts = time.Now()
			}
			return nil
		}}
	}
	if s.record == nil {
		return stubRow{}
	}
	rec := *s.record
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = rec.ID
		*dest[1].(*string) = rec.StoredObjectURL
		*dest[2].(*string) = rec.DisplayName
		*dest[3].(*string) = rec.AttributionID
		*dest[4].(*int) = rec.AccessCount
		*dest[5].(*time.Time) = rec.CreatedAt
		return nil
	}}
}

func (s *stubShareDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, nil
}

type fixture struct {
	router  http.Handler
	store   *stubObjectStore
	shareDB *stubShareDB
}

func newFixture(t *testing.T, gatewayHandler http.HandlerFunc, storageCfg storage.Config) *fixture {
	t.Helper()
	gatewaySrv := httptest.NewServer(gatewayHandler)
	t.Cleanup(gatewaySrv.Close)

	store := &stubObjectStore{}
	shareDB := &stubShareDB{}

	app := handlers.NewApp(
		zerolog.Nop(),
		images.NewNormalizer(nil),
		genai.NewClient(genai.Config{BaseURL: gatewaySrv.URL}),
		storage.NewWriter(store, storageCfg, zerolog.Nop()),
		share.NewPublisher(shareDB, "https://genie.example.com", zerolog.Nop()),
		"https://genie.example.com",
	)
	return &fixture{
		router:  httpapi.NewRouter(app, zerolog.Nop(), nil),
		store:   store,
		shareDB: shareDB,
	}
}

func testPNGBase64(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func gatewayReturningImage(base64Data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"steps": []map[string]any{{
				"content": []map[string]any{{
					"type": "file",
					"file": map[string]string{"base64Data": base64Data, "mediaType": "image/png"},
				}},
			}},
		})
	}
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestGenerateAndStoreReturnsInlineImage(t *testing.T) {
	var captured map[string]any
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		gatewayReturningImage("Z2VuZXJhdGVk")(w, r)
	}, storage.Config{PublicBaseURL: "https://cdn.example.com"})

	rec := postJSON(t, fx.router, "/v1/generate-and-store", map[string]any{
		"text_prompt": "turn background black and white",
		"images": []map[string]string{
			{"media_type": "image/png", "data": testPNGBase64(t, 40, 30)},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["image_base64"] != "Z2VuZXJhdGVk" || body["mime_type"] != "image/png" {
		t.Fatalf("body: %v", body)
	}

	// The gateway must have received the text part first, then the
	// normalized image.
	messages := captured["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content count: got %d want 2", len(content))
	}
	if content[0].(map[string]any)["type"] != "text" {
		t.Fatalf("first part is not text: %v", content[0])
	}
	if content[1].(map[string]any)["mediaType"] != "image/png" {
		t.Fatalf("image part lost its media type: %v", content[1])
	}
}

func TestGenerateAndStorePersistsWhenPrefixGiven(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("generated-bytes"))
	fx := newFixture(t, gatewayReturningImage(payload), storage.Config{PublicBaseURL: "https://cdn.example.com"})

	rec := postJSON(t, fx.router, "/v1/generate-and-store", map[string]any{
		"text_prompt":   "make it vintage",
		"images":        []map[string]string{},
		"folder_prefix": "filtered",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	url, _ := body["image_url"].(string)
	if !strings.HasPrefix(url, "https://cdn.example.com/filtered/") {
		t.Fatalf("image_url: got %q", url)
	}
	if string(fx.store.data) != "generated-bytes" {
		t.Fatalf("stored payload mismatch: %q", fx.store.data)
	}
	if !strings.HasPrefix(fx.store.key, "filtered/") {
		t.Fatalf("stored key: got %q", fx.store.key)
	}
}

func TestGenerateAndStoreSurfacesPartialFailure(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("generated-bytes"))
	fx := newFixture(t, gatewayReturningImage(payload), storage.Config{PublicBaseURL: "https://cdn.example.com"})
	fx.store.err = fmt.Errorf("%w: bucket unavailable", storage.ErrStorageWrite)

	rec := postJSON(t, fx.router, "/v1/generate-and-store", map[string]any{
		"text_prompt":   "make it vintage",
		"folder_prefix": "filtered",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d want 502", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "generated_not_stored" {
		t.Fatalf("error code: got %v", body["error"])
	}
	if body["image_base64"] != payload {
		t.Fatal("response must carry the generated payload so the save step can be retried")
	}
}

func TestGenerateAndStoreNoImageReturned(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"steps": []map[string]any{{"content": []map[string]any{{"type": "text", "text": "sorry"}}}},
		})
	}, storage.Config{})

	rec := postJSON(t, fx.router, "/v1/generate-and-store", map[string]any{"text_prompt": "x"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d want 502", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "no_image_returned" {
		t.Fatalf("error code: got %v", body["error"])
	}
}

func TestGenerateAndStoreRejectsMissingPrompt(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})
	rec := postJSON(t, fx.router, "/v1/generate-and-store", map[string]any{"text_prompt": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rec.Code)
	}
}

func TestSaveImage(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{PublicBaseURL: "https://cdn.example.com"})

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	rec := postJSON(t, fx.router, "/v1/images/save", map[string]string{
		"image":       "data:image/png;base64," + payload,
		"destination": "video_inputs",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	url, _ := body["url"].(string)
	if !strings.HasPrefix(url, "https://cdn.example.com/video_inputs/") {
		t.Fatalf("url: got %q", url)
	}

	rec = postJSON(t, fx.router, "/v1/images/save", map[string]string{
		"image":       "https://example.com/a.png",
		"destination": "video_inputs",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-data-url status: got %d want 400", rec.Code)
	}
}

func TestSaveImageRequiresPublicBase(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{Endpoint: "https://acc.r2.example.com", Bucket: "b"})

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	rec := postJSON(t, fx.router, "/v1/images/save", map[string]string{
		"image":       "data:image/png;base64," + payload,
		"destination": "uploads",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d want 500", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "storage_misconfigured" {
		t.Fatalf("error code: got %v", body["error"])
	}
}

func TestCreateShareUsesRequestOrigin(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})

	raw, _ := json.Marshal(map[string]string{
		"image_url":    "https://cdn.example.com/filtered/a.png",
		"display_name": "Noir",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/share", bytes.NewReader(raw))
	req.Header.Set("Origin", "https://app.genie.example.com")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	shareURL, _ := body["share_url"].(string)
	if id == "" {
		t.Fatal("missing id")
	}
	if want := "https://app.genie.example.com/shared?id=" + id; shareURL != want {
		t.Fatalf("share_url: got %q want %q", shareURL, want)
	}
}

func TestCreateSharePersistFailureIsDistinct(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})
	fx.shareDB.insertErr = errors.New("write conflict")

	rec := postJSON(t, fx.router, "/v1/share", map[string]string{
		"image_url":    "https://cdn.example.com/filtered/a.png",
		"display_name": "Noir",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d want 502", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "share_failed" {
		t.Fatalf("error code: got %v", body["error"])
	}
}

func TestGetShareBumpsAccessCount(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})
	fx.shareDB.record = &share.Record{
		ID:              "abc-123",
		StoredObjectURL: "https://cdn.example.com/filtered/a.png",
		DisplayName:     "Noir",
		AccessCount:     4,
		CreatedAt:       time.Now(),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/share/abc-123", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["image_url"] != "https://cdn.example.com/filtered/a.png" {
		t.Fatalf("body: %v", body)
	}
	if fx.shareDB.execCalls != 1 {
		t.Fatalf("access count updates: got %d want 1", fx.shareDB.execCalls)
	}
}

func TestClientConfigResolvesPerContext(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["execution_context"] != "browser" || body["api_base_url"] != "" {
		t.Fatalf("browser config: %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	req.Header.Set(handlers.NativeShellHeader, "1")
	rec = httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	body = decodeBody(t, rec)
	if body["execution_context"] != "native" {
		t.Fatalf("native config: %v", body)
	}
	if body["api_base_url"] != "https://genie.example.com" {
		t.Fatalf("native base url: got %v", body["api_base_url"])
	}
}

func TestGetShareNotFound(t *testing.T) {
	fx := newFixture(t, gatewayReturningImage("x"), storage.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/share/missing", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d want 404", rec.Code)
	}
}
