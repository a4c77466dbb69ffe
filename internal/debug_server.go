package internal

import (
	"context"
	"flash-feed/domain"
	"flash-feed/infrastructure/codec"
	"flash-feed/observability"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const healthTimeout = 2 * time.Second

// HistoryReader reads a whole conversation in store order.
type HistoryReader interface {
	Scan(conversation domain.ConversationID) ([]domain.Record, error)
}

// HealthCheck reports whether the store behind the server is reachable.
type HealthCheck func(ctx context.Context) error

// NewDebugMux exposes /metrics, /healthz and, when history is not nil, /debug/feed.
func NewDebugMux(log *slog.Logger, history HistoryReader, health HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := health(ctx); err != nil {
				log.Warn("Health check failed", "error", err)
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		fmt.Fprint(w, "OK")
	})

	if history != nil {
		mux.HandleFunc("/debug/feed", func(w http.ResponseWriter, r *http.Request) {
			conversation := domain.ConversationID(r.URL.Query().Get("conversation"))
			if conversation == "" {
				conversation = domain.DefaultConversation
			}
			if !conversation.Valid() {
				http.Error(w, "invalid conversation", http.StatusBadRequest)
				return
			}
			records, err := history.Scan(conversation)
			if err != nil {
				log.Error("Reading history failed", "conversation", conversation, "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			body, err := protojson.MarshalOptions{Multiline: true}.Marshal(recordsToList(records))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		})
	}
	return mux
}

func recordsToList(records []domain.Record) *structpb.ListValue {
	return &structpb.ListValue{Values: lo.Map(records, func(r domain.Record, _ int) *structpb.Value {
		return structpb.NewStructValue(codec.RecordToStruct(r))
	})}
}
