package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hanpama/compositegraph/internal/elaborate"
	"github.com/hanpama/compositegraph/internal/introspect"
	"github.com/hanpama/compositegraph/internal/memmap"
	"github.com/hanpama/compositegraph/internal/schema"
)

type widget struct {
	ID   string
	Name string
}

type widgetResolver struct{}

func (widgetResolver) TypeNameOf(value any) string {
	if _, ok := value.(*widget); ok {
		return "Widget"
	}
	return ""
}

func (widgetResolver) FieldValue(value any, fieldName string) (any, error) {
	w := value.(*widget)
	switch fieldName {
	case "id":
		return w.ID, nil
	case "name":
		return w.Name, nil
	}
	return nil, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	widgetType := schema.Object("Widget", nil,
		&schema.Field{Name: "id", Type: schema.Scalar("ID")},
		&schema.Field{Name: "name", Type: schema.Scalar("String")},
	)
	queryType := schema.Object("Query", nil,
		&schema.Field{Name: "widget", Type: schema.Named("Widget")},
	)
	sch := schema.New("Query", "", "", queryType, widgetType)

	local := memmap.New(sch, widgetResolver{}, map[string]any{
		"widget": &widget{ID: "w1", Name: "Sprocket"},
	})

	return New(sch, elaborate.ComponentTable{}, local.RunRootValues, introspect.New(sch))
}

func TestServeHTTP_ResolvesLocalField(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(`{"query":"{ widget { id name } }"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Data struct {
			Widget struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"widget"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v, body = %s", err, w.Body.String())
	}
	if body.Data.Widget.ID != "w1" || body.Data.Widget.Name != "Sprocket" {
		t.Fatalf("unexpected widget: %+v", body.Data.Widget)
	}
}

func TestServeHTTP_RejectsGet(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestServeHTTP_EmptyQueryIsBadRequest(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(`{"query":""}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestServeHTTP_BadQuerySyntaxReportsErrors(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(`{"query":"{ widget { "}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Errors) == 0 {
		t.Fatalf("expected a parse error, got %s", w.Body.String())
	}
}
