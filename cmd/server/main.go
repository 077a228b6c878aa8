// Command server is the composite-graph HTTP entrypoint. It wires a local
// schema.Schema, an in-memory memmap.Mapping for the fields it owns
// directly, an optional internal/remote.Mapping for fields delegated to
// another process, and internal/introspect for __schema/__type.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanpama/compositegraph/internal/cursor"
	"github.com/hanpama/compositegraph/internal/elaborate"
	"github.com/hanpama/compositegraph/internal/grpctp"
	"github.com/hanpama/compositegraph/internal/httpapi"
	"github.com/hanpama/compositegraph/internal/introspect"
	"github.com/hanpama/compositegraph/internal/memmap"
	"github.com/hanpama/compositegraph/internal/query"
	"github.com/hanpama/compositegraph/internal/remote"
	"github.com/hanpama/compositegraph/internal/result"
	"github.com/hanpama/compositegraph/internal/schema"
	"github.com/hanpama/compositegraph/internal/telemetry"
	"github.com/hanpama/compositegraph/internal/telemetry/logsub"
	"github.com/hanpama/compositegraph/internal/telemetry/otelsub"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	pretty := flag.Bool("pretty", false, "indent JSON responses")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	remoteAddr := flag.String("remote.addr", "", "backend address for the delegated remoteWidget field, e.g. localhost:9090 (disabled if empty)")
	otelEndpoint := flag.String("otel.endpoint", "", "OTLP gRPC collector endpoint (tracing disabled if empty)")
	otelService := flag.String("otel.service", "compositegraph", "service name reported to the collector")
	flag.Parse()

	log := logrus.StandardLogger()

	telemetry.Use(telemetry.NewBus())
	logsub.Register(log)
	shutdown, err := otelsub.Setup(*otelEndpoint, *otelService)
	if err != nil {
		log.WithError(err).Fatal("failed to configure tracing")
	}
	defer func() { _ = shutdown(context.Background()) }()

	sch := buildSchema()
	widgets := seedWidgets()
	local := memmap.New(sch, widgetResolver{}, map[string]any{
		"widget":  widgets["w1"],
		"widgets": []any{widgets["w1"], widgets["w2"], widgets["w3"]},
	})

	components := elaborate.ComponentTable{}
	if *remoteAddr != "" {
		mapping, err := buildRemoteMapping(sch, *remoteAddr)
		if err != nil {
			log.WithError(err).Fatal("failed to configure remote backend")
		}
		components["remoteWidget"] = elaborate.ComponentEntry{
			Interpreter: mapping,
			Join: func(_ cursor.Cursor, child *query.Query) result.Result[*query.Query] {
				return result.Success(child)
			},
		}
	}

	introspectionInterp := introspect.New(sch)

	handler := httpapi.New(sch, components, local.RunRootValues, introspectionInterp,
		httpapi.WithTimeout(*timeout),
		optionalPretty(*pretty),
	)

	mux := http.NewServeMux()
	mux.Handle("/graphql", handler)

	log.WithField("addr", *addr).Info("compositegraph server listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func optionalPretty(on bool) httpapi.Option {
	if on {
		return httpapi.WithPretty()
	}
	return func(*httpapi.Options) {}
}

func buildSchema() *schema.Schema {
	widgetType := schema.Object("Widget", nil,
		&schema.Field{Name: "id", Type: schema.Scalar("ID")},
		&schema.Field{Name: "name", Type: schema.Scalar("String")},
	)
	queryType := schema.Object("Query", nil,
		&schema.Field{Name: "widget", Type: schema.Named("Widget"), Args: []string{"id"}},
		&schema.Field{Name: "widgets", Type: schema.List(schema.Named("Widget"))},
		&schema.Field{Name: "remoteWidget", Type: schema.Named("Widget"), Args: []string{"id"}},
	)
	return schema.New("Query", "", "", queryType, widgetType)
}

type widget struct {
	ID   string
	Name string
}

func seedWidgets() map[string]*widget {
	return map[string]*widget{
		"w1": {ID: "w1", Name: "Sprocket"},
		"w2": {ID: "w2", Name: "Gear"},
		"w3": {ID: "w3", Name: "Cog"},
	}
}

// widgetResolver implements memmap.Resolver over the *widget values above.
type widgetResolver struct{}

func (widgetResolver) TypeNameOf(value any) string {
	if _, ok := value.(*widget); ok {
		return "Widget"
	}
	return ""
}

func (widgetResolver) FieldValue(value any, fieldName string) (any, error) {
	w, ok := value.(*widget)
	if !ok {
		return nil, fmt.Errorf("widgetResolver: unexpected value type %T", value)
	}
	switch fieldName {
	case "id":
		return w.ID, nil
	case "name":
		return w.Name, nil
	default:
		return nil, fmt.Errorf("widgetResolver: unknown field %q", fieldName)
	}
}

func buildRemoteMapping(sch *schema.Schema, addr string) (*remote.Mapping, error) {
	transport := grpctp.New(grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{
		"compositegraph.remote.CompositeGraphRemote": {addr},
	})))
	rt, err := remote.NewTransport(transport)
	if err != nil {
		return nil, err
	}
	return remote.New(sch, rt), nil
}

func init() {
	if os.Getenv("COMPOSITEGRAPH_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
