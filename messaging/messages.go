// Package messaging carries typed messages between the page context and
// the background service, either in process or over HTTP.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"npcheck/models"
)

const (
	ActionScanListingPage   = "scanListingPage"
	ActionGetAlternatePrice = "getAlternatePrice"
	ActionProducts          = "npcProducts"
)

// ErrUnknownAction is returned when decoding or dispatching an action
// nobody registered.
var ErrUnknownAction = errors.New("unknown action")

// Message is one of the concrete message types below.
type Message interface {
	Action() string
}

// ScanListingPage asks the page context to scan and annotate its products.
type ScanListingPage struct{}

func (ScanListingPage) Action() string { return ActionScanListingPage }

// GetAlternatePrice asks the background to fetch a product on the other
// storefront.
type GetAlternatePrice struct {
	URL           string `json:"url"`
	PriceSelector string `json:"priceSelector,omitempty"`
}

func (GetAlternatePrice) Action() string { return ActionGetAlternatePrice }

// ProductsEvent broadcasts the products found by a scan.
type ProductsEvent struct {
	Products []models.Product `json:"products"`
}

func (ProductsEvent) Action() string { return ActionProducts }

// ErrorResponse is the reply for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Ack is the empty reply.
type Ack struct{}

// Encode serialises msg with its action tag.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Action(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Action(), err)
	}
	action, _ := json.Marshal(msg.Action())
	fields["action"] = action
	return json.Marshal(fields)
}

// Decode parses an action-tagged message.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	var msg Message
	switch envelope.Action {
	case ActionScanListingPage:
		return ScanListingPage{}, nil
	case ActionGetAlternatePrice:
		var m GetAlternatePrice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", envelope.Action, err)
		}
		msg = m
	case ActionProducts:
		var m ProductsEvent
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", envelope.Action, err)
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Action)
	}
	return msg, nil
}
