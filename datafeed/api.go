// Package datafeed implements the long-lived polling loops over the agent's
// event queues: datafeed v1 and v2 plus the tag-filtered datahose stream.
package datafeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/event"
	"github.com/finos/symphony-bdk-go/network"
)

// EventBatch is one read from a v2 datafeed or the datahose: the events plus
// the ack cursor releasing them from redelivery.
type EventBatch struct {
	AckID  string          `json:"ackId"`
	Events []event.V4Event `json:"events"`
}

type datafeedIdentifier struct {
	ID string `json:"id"`
}

// API is the thin binding to the agent's datafeed endpoints.
type API struct {
	client *network.Client
	logger *zap.Logger
}

// NewAPI wraps the agent client.
func NewAPI(client *network.Client, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{client: client, logger: logger.Named("datafeed-api")}
}

// AgentBaseURL identifies the agent this API talks to; the v1 loop records
// it next to the persisted datafeed id.
func (a *API) AgentBaseURL() string {
	return a.client.BaseURL()
}

// CreateV1 creates a per-bot v1 queue and returns its id.
func (a *API) CreateV1(ctx context.Context, session auth.Session) (string, error) {
	var created datafeedIdentifier
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodPost,
		Path:    "/agent/v4/datafeed/create",
		Headers: auth.AuthHeaders(session),
		Out:     &created,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// ReadV1 long-polls the v1 queue. A null or empty response means no events.
func (a *API) ReadV1(ctx context.Context, session auth.Session, datafeedID string) ([]event.V4Event, error) {
	var events []event.V4Event
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodGet,
		Path:    fmt.Sprintf("/agent/v4/datafeed/%s/read", url.PathEscape(datafeedID)),
		Headers: auth.AuthHeaders(session),
		Out:     &events,
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListV2 returns the ids of the bot's v2 datafeeds carrying the given tag.
func (a *API) ListV2(ctx context.Context, session auth.Session, tag string) ([]string, error) {
	var feeds []datafeedIdentifier
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodGet,
		Path:    "/agent/v5/datafeeds",
		Headers: auth.AuthHeaders(session),
		Query:   url.Values{"tag": []string{tag}},
		Out:     &feeds,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(feeds))
	for _, feed := range feeds {
		ids = append(ids, feed.ID)
	}
	return ids, nil
}

// CreateV2 creates a tagged v2 datafeed and returns its id.
func (a *API) CreateV2(ctx context.Context, session auth.Session, tag string) (string, error) {
	var created datafeedIdentifier
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodPost,
		Path:    "/agent/v5/datafeeds",
		Headers: auth.AuthHeaders(session),
		Body:    map[string]string{"tag": tag},
		Out:     &created,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteV2 removes a v2 datafeed.
func (a *API) DeleteV2(ctx context.Context, session auth.Session, datafeedID string) error {
	return a.client.Call(ctx, network.Request{
		Method:  http.MethodDelete,
		Path:    fmt.Sprintf("/agent/v5/datafeeds/%s", url.PathEscape(datafeedID)),
		Headers: auth.AuthHeaders(session),
	})
}

// ReadV2 long-polls a v2 datafeed from the given ack cursor.
func (a *API) ReadV2(ctx context.Context, session auth.Session, datafeedID string, ackID string) (*EventBatch, error) {
	var batch EventBatch
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/agent/v5/datafeeds/%s/read", url.PathEscape(datafeedID)),
		Headers: auth.AuthHeaders(session),
		Body:    map[string]string{"ackId": ackID},
		Out:     &batch,
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

type datahoseReadRequest struct {
	Type    string   `json:"type"`
	Tag     string   `json:"tag"`
	Filters []string `json:"filters"`
	AckID   string   `json:"ackId"`
}

// ReadEvents long-polls the shared datahose stream with the given filters.
func (a *API) ReadEvents(ctx context.Context, session auth.Session, tag string, filters []string, ackID string) (*EventBatch, error) {
	var batch EventBatch
	err := a.client.Call(ctx, network.Request{
		Method:  http.MethodPost,
		Path:    "/agent/v5/events/read",
		Headers: auth.AuthHeaders(session),
		Body: datahoseReadRequest{
			Type:    "datahose",
			Tag:     tag,
			Filters: filters,
			AckID:   ackID,
		},
		Out: &batch,
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}
