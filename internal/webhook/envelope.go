// Package webhook receives order-lifecycle notifications over HTTP and hands
// them to the loyalty processor. It owns envelope decoding and the mapping of
// processing outcomes to HTTP status codes; everything else is the engine's.
package webhook

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// ErrMalformedEvent marks a payload that cannot be turned into an Event:
// undecodable JSON, no event type, or no order id. Malformed deliveries are a
// client error and must not be retried.
var ErrMalformedEvent = errors.New("malformed event payload")

// DecodeEvent parses a notification envelope. The envelope is decoded
// tolerantly: unknown members are skipped, the order id is taken from the
// resource reference or from an embedded order object, and the new state key
// is accepted both as a plain string and as an object with a "key" member.
func DecodeEvent(payload []byte) (loyalty.Event, error) {
	var (
		typ        string
		resourceID string
		orderID    string
		stateKey   string
	)

	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			if err != nil {
				return err
			}
			typ = v
		case "resource":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				v, err := d.Str()
				if err != nil {
					return err
				}
				resourceID = v
				return nil
			})
		case "order":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				v, err := d.Str()
				if err != nil {
					return err
				}
				orderID = v
				return nil
			})
		case "orderState":
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				stateKey = v
				return nil
			case jx.Object:
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "key" {
						return d.Skip()
					}
					v, err := d.Str()
					if err != nil {
						return err
					}
					stateKey = v
					return nil
				})
			default:
				return d.Skip()
			}
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return loyalty.Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	id := resourceID
	if id == "" {
		id = orderID
	}
	if typ == "" || id == "" {
		return loyalty.Event{}, ErrMalformedEvent
	}

	return loyalty.Event{
		Type:        loyalty.EventType(typ),
		OrderID:     id,
		NewStateKey: stateKey,
	}, nil
}
