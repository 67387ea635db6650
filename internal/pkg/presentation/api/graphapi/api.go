// Package graphapi exposes the gateway pipeline over HTTP. The transport
// stays thin: it extracts credentials and the entity string, hands them to
// the router and writes back whatever delivery comes out.
package graphapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/diwise/graph-gateway/internal/pkg/application/router"
	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("graph-gateway/api")

func RegisterHandlers(ctx context.Context, serviceName string, mux *http.ServeMux, gateway *router.Gateway) error {

	log := logging.GetFromContext(ctx)

	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key", "X-Cache-Purge"},
		AllowCredentials: true,
	}).Handler)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(Logger(log))

	handler := newRequestHandler(gateway)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/*", handler)
		r.Post("/*", handler)
		r.Put("/*", handler)
		r.Delete("/*", handler)
	})

	mux.Handle("/", r)

	return nil
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestHandler(gateway *router.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "graph-request")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		entity := chi.URLParam(r, "*")
		if r.URL.RawQuery != "" {
			entity += "?" + r.URL.RawQuery
		}

		payload, err := decodePayload(r)
		if err != nil {
			ngerrors.ReportNewRequestParseFailure(w, err.Error(), traceID(ctx))
			return
		}

		delivery := gateway.DoRequest(ctx, contextDataFrom(r), router.Request{
			Entity:  entity,
			Method:  r.Method,
			Payload: payload,
		})

		w.Header().Add("Content-Type", delivery.ContentType)
		w.WriteHeader(delivery.Code)
		w.Write(delivery.Body)
	}
}

func decodePayload(r *http.Request) (map[string]any, error) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, ngerrors.NewParseFailureError("unable to read request payload: " + err.Error())
	}

	if len(body) == 0 {
		return nil, nil
	}

	payload := map[string]any{}
	if err = json.Unmarshal(body, &payload); err != nil {
		return nil, ngerrors.NewParseFailureError("unable to decode request payload: " + err.Error())
	}

	return payload, nil
}

func contextDataFrom(r *http.Request) sessions.ContextData {
	data := sessions.ContextData{
		APIKey: r.Header.Get("X-API-Key"),
		Purge:  r.Header.Get("X-Cache-Purge") == "true",
		Origin: r.Header.Get("Origin"),
	}

	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		data.Token = token
	}

	return data
}

func traceID(ctx context.Context) string {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return ""
}
