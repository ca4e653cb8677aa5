package platform

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

type customerDTO struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Custom  *struct {
		Type struct {
			ID  string `json:"id"`
			Obj *struct {
				Key string `json:"key"`
			} `json:"obj"`
		} `json:"type"`
		Fields map[string]any `json:"fields"`
	} `json:"custom"`
}

// CustomerByID fetches the customer projection, expanding the attached
// custom type so its key is comparable against Keys.CustomerTypeKey.
func (c *Client) CustomerByID(ctx context.Context, id string) (*loyalty.Customer, error) {
	var dto customerDTO
	if err := c.get(ctx, "/customers/"+id+"?expand=custom.type", &dto); err != nil {
		return nil, err
	}

	cust := &loyalty.Customer{
		ID:      dto.ID,
		Version: dto.Version,
		Fields:  map[string]any{},
	}
	if dto.Custom != nil {
		if dto.Custom.Type.Obj != nil {
			cust.CustomTypeKey = dto.Custom.Type.Obj.Key
		}
		if dto.Custom.Fields != nil {
			cust.Fields = dto.Custom.Fields
		}
	}
	return cust, nil
}

// updateActionDTO is the wire shape of one customer update action. Only the
// members relevant to the action kind are populated.
type updateActionDTO struct {
	Action string         `json:"action"`
	Type   *typeRefDTO    `json:"type,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Name   string         `json:"name,omitempty"`
	Value  any            `json:"value,omitempty"`
}

type typeRefDTO struct {
	TypeID string `json:"typeId"`
	Key    string `json:"key"`
}

// UpdateCustomer applies the ordered action list, conditioned on the version
// token. The platform answers a stale version with 409, surfaced as
// loyalty.ErrVersionConflict.
func (c *Client) UpdateCustomer(ctx context.Context, id string, version int64, actions []loyalty.CustomerUpdateAction) error {
	wire := make([]updateActionDTO, 0, len(actions))
	for _, a := range actions {
		switch act := a.(type) {
		case loyalty.SetCustomTypeAction:
			wire = append(wire, updateActionDTO{
				Action: "setCustomType",
				Type:   &typeRefDTO{TypeID: "type", Key: act.TypeKey},
			})
		case loyalty.SetCustomFieldAction:
			wire = append(wire, updateActionDTO{
				Action: "setCustomField",
				Name:   act.Name,
				Value:  act.Value,
			})
		default:
			return errors.Errorf("unsupported update action %T", a)
		}
	}

	body := struct {
		Version int64             `json:"version"`
		Actions []updateActionDTO `json:"actions"`
	}{Version: version, Actions: wire}

	return c.post(ctx, "/customers/"+id, body, nil)
}
