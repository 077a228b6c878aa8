// Package httpapi serves a GraphQL endpoint over the driver/interp/complete
// pipeline: it parses a request body, elaborates the query text, and drives
// driver.RunRoot to a response envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/driver"
	"github.com/hanpama/compositegraph/internal/elaborate"
	"github.com/hanpama/compositegraph/internal/protojson"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/reqid"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
	"github.com/hanpama/compositegraph/internal/telemetry"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	schema     *schema.Schema
	components elaborate.ComponentTable
	resolve    func(triples []driver.RootQueryTriple) ([]result.Problem, []*protojson.Node)
	introspect query.Interpreter
	opt        Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }

// New creates a GraphQL HTTP handler. resolve is the Mapping.RunRootValues of
// whichever backend owns the plain (non-introspection, non-Component) root
// fields; introspectionInterp answers __schema/__type.
func New(
	sch *schema.Schema,
	components elaborate.ComponentTable,
	resolve func(triples []driver.RootQueryTriple) ([]result.Problem, []*protojson.Node),
	introspectionInterp query.Interpreter,
	opts ...Option,
) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{schema: sch, components: components, resolve: resolve, introspect: introspectionInterp, opt: op}
}

type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"errors":[{"message":"method not allowed"}]}`))
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"` + escapeJSON(err.Error()) + `"}]}`))
		return
	}

	start := time.Now()
	telemetry.Publish(ctx, telemetry.RootQueryStart{OperationName: body.OperationName})

	rootTpe := h.schema.RootType(h.schema.QueryType)
	q, err := elaborate.Elaborate(body.Query, rootTpe, h.schema, h.components)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(errorsResponse(err.Error()))
		telemetry.Publish(ctx, telemetry.RootQueryFinish{OperationName: body.OperationName, ErrorCount: 1, Duration: time.Since(start)})
		return
	}

	problems, data := driver.RunRoot(ctx, q, rootTpe, cursor.Env{}, h.resolve, h.introspect)
	telemetry.Publish(ctx, telemetry.RootQueryFinish{
		OperationName: body.OperationName,
		ErrorCount:    len(problems),
		Duration:      time.Since(start),
	})

	w.Header().Set("Content-Type", "application/json")
	if h.opt.Pretty {
		var buf map[string]any
		if json.Unmarshal(data, &buf) == nil {
			if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
				_, _ = w.Write(pretty)
				return
			}
		}
	}
	_, _ = w.Write(data)
}

func (h *Handler) readBody(r *http.Request) (requestBody, error) {
	var rdr io.Reader = r.Body
	if h.opt.MaxBodyBytes > 0 {
		rdr = io.LimitReader(r.Body, h.opt.MaxBodyBytes+1)
	}
	raw, err := io.ReadAll(rdr)
	if err != nil {
		return requestBody{}, err
	}
	var body requestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return requestBody{}, err
	}
	if strings.TrimSpace(body.Query) == "" {
		return requestBody{}, errEmptyQuery
	}
	return body, nil
}

var errEmptyQuery = errors.New("query is required")

func errorsResponse(msg string) []byte {
	b, _ := json.Marshal(map[string]any{
		"errors": []map[string]any{{"message": msg}},
	})
	return b
}

func escapeJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
