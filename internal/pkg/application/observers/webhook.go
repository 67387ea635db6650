package observers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("graph-gateway/observers")

type action func()

// Webhook is a listener that posts events to an external endpoint from a
// single worker goroutine, so that slow receivers never stall dispatch.
type Webhook struct {
	started  bool
	endpoint string

	queue chan action
}

func NewWebhook(ctx context.Context, endpoint string) (*Webhook, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("an observer endpoint may not be empty")
	}

	return &Webhook{
		endpoint: endpoint,
		queue:    make(chan action, 32),
	}, nil
}

func (w *Webhook) Start() error {
	if w.started {
		return fmt.Errorf("already started")
	}

	w.started = true

	go w.run()

	return nil
}

func (w *Webhook) Stop() error {
	if w.started {
		// Create a result channel so that we can wait for completion
		resultChan := make(chan bool)

		w.queue <- func() {
			// close the queue to signal the consumer that we are going out of business
			close(w.queue)
			resultChan <- true
		}

		// blocking read until our action has been processed
		<-resultChan
	}
	return nil
}

func (w *Webhook) Notify(ctx context.Context, event Event) {
	if !w.started {
		return
	}

	var err error

	logger := logging.GetFromContext(ctx)

	ctx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"post",
	)

	w.queue <- func() {
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = postEvent(ctx, event, w.endpoint)
		if err != nil {
			logger.Error("failed to post observer event", "err", err.Error())
		}
	}
}

func postEvent(ctx context.Context, event Event, endpoint string) error {
	body, err := json.MarshalIndent(event, "", " ")
	if err != nil {
		return fmt.Errorf("marshalling error (%w)", err)
	}

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (%w)", err)
	}

	defer resp.Body.Close()

	return nil
}

func (w *Webhook) run() {
	// repeat until the queue is closed
	for action := range w.queue {
		if action == nil {
			return
		}

		action()
	}
}
