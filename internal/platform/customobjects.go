package platform

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// CustomObjectValue returns the raw JSON value stored under the given
// container/key pair, or loyalty.ErrNotFound when the object is absent.
func (c *Client) CustomObjectValue(ctx context.Context, container, key string) (json.RawMessage, error) {
	var dto struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.get(ctx, "/custom-objects/"+container+"/"+key, &dto); err != nil {
		return nil, err
	}
	return dto.Value, nil
}

// UpsertCustomObject creates or replaces the custom object under the given
// container/key pair.
func (c *Client) UpsertCustomObject(ctx context.Context, container, key string, value any) error {
	body := struct {
		Container string `json:"container"`
		Key       string `json:"key"`
		Value     any    `json:"value"`
	}{Container: container, Key: key, Value: value}

	return c.post(ctx, "/custom-objects", body, nil)
}

// RatesLoader implements loyalty.TableLoader on top of the platform's
// custom-object storage. Every Load hits the platform; the table is never
// cached across events.
type RatesLoader struct {
	client *Client
	keys   loyalty.Keys
}

var _ loyalty.TableLoader = (*RatesLoader)(nil)

// NewRatesLoader creates a loader reading the conversion table addressed by
// keys.RateContainer / keys.RateKey.
func NewRatesLoader(client *Client, keys loyalty.Keys) *RatesLoader {
	return &RatesLoader{client: client, keys: keys}
}

// Load reads and parses the conversion table. An absent object parses as an
// empty table (the processor then skips the event); transport failures are
// genuine errors.
func (l *RatesLoader) Load(ctx context.Context) (loyalty.Table, error) {
	raw, err := l.client.CustomObjectValue(ctx, l.keys.RateContainer, l.keys.RateKey)
	if errors.Is(err, loyalty.ErrNotFound) {
		return loyalty.ParseTable(nil), nil
	}
	if err != nil {
		return loyalty.Table{}, err
	}
	return loyalty.ParseTable(raw), nil
}
