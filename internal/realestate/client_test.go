package realestate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/NodirbekRare/famestate/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testMember() *model.Member {
	return &model.Member{
		ID:         1,
		LastName:   "Иванов",
		FirstName:  "Иван",
		MiddleName: "Иванович",
		BirthDate:  "1980-05-15",
	}
}

// TestClient_Lookup は照会APIの呼び出しとレスポンス解釈を検証する。
func TestClient_Lookup(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"last_name":   q.Get("last_name"),
			"first_name":  q.Get("first_name"),
			"middle_name": q.Get("middle_name"),
			"birth_date":  q.Get("birth_date"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hasRealEstate":true,"objects":[{"type":"Квартира","address":"г. Москва","ownership":"Собственность"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), server.URL, 1<<20, rate.Inf)

	result, err := client.Lookup(context.Background(), testMember())
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if gotQuery["last_name"] != "Иванов" || gotQuery["first_name"] != "Иван" ||
		gotQuery["middle_name"] != "Иванович" || gotQuery["birth_date"] != "1980-05-15" {
		t.Errorf("unexpected query params: %v", gotQuery)
	}

	if !result.HasRealEstate {
		t.Error("HasRealEstate should be true")
	}
	if len(result.Objects) != 1 {
		t.Fatalf("len(Objects) = %d, want 1", len(result.Objects))
	}
	obj := result.Objects[0]
	if obj.Type != "Квартира" || obj.Address != "г. Москва" || obj.Ownership != "Собственность" {
		t.Errorf("unexpected object: %+v", obj)
	}
}

// TestClient_Lookup_HTTPError はエラーステータスの扱いを検証する。
func TestClient_Lookup_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), server.URL, 1<<20, rate.Inf)

	if _, err := client.Lookup(context.Background(), testMember()); err == nil {
		t.Fatal("Lookup() should fail for HTTP 500")
	}
}

// TestClient_Lookup_InvalidJSON は不正なレスポンスボディの扱いを検証する。
func TestClient_Lookup_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), server.URL, 1<<20, rate.Inf)

	if _, err := client.Lookup(context.Background(), testMember()); err == nil {
		t.Fatal("Lookup() should fail for invalid JSON")
	}
}

// TestClient_Lookup_BodySizeLimit はレスポンスボディの上限を検証する。
// 上限で切り詰められたJSONはパースに失敗する。
func TestClient_Lookup_BodySizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hasRealEstate":false,"objects":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), server.URL, 10, rate.Inf)

	if _, err := client.Lookup(context.Background(), testMember()); err == nil {
		t.Fatal("Lookup() should fail when body exceeds the limit")
	}
}
