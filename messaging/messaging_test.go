package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"npcheck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(GetAlternatePrice{URL: "https://www.next.co.il/en/style/st1", PriceSelector: "span"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"getAlternatePrice","url":"https://www.next.co.il/en/style/st1","priceSelector":"span"}`, string(data))

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, GetAlternatePrice{URL: "https://www.next.co.il/en/style/st1", PriceSelector: "span"}, msg)

	data, err = Encode(ScanListingPage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"scanListingPage"}`, string(data))

	msg, err = Decode([]byte(`{"action":"npcProducts","products":[{"link":"a","price":"£1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, ProductsEvent{Products: []models.Product{{Link: "a", Price: "£1"}}}, msg)

	_, err = Decode([]byte(`{"action":"comparePrices"}`))
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	Handle(r, func(_ context.Context, msg GetAlternatePrice) (any, error) {
		switch msg.URL {
		case "boom":
			panic("kaboom")
		case "fail":
			return nil, errors.New("no luck")
		}
		return models.AlternatePriceResponse{Error: "404", Status: 404}, nil
	})
	Handle(r, func(context.Context, ScanListingPage) (any, error) { return nil, nil })

	ctx := context.Background()
	assert.Equal(t, models.AlternatePriceResponse{Error: "404", Status: 404}, r.Dispatch(ctx, GetAlternatePrice{URL: "x"}))
	assert.Equal(t, ErrorResponse{Error: "no luck"}, r.Dispatch(ctx, GetAlternatePrice{URL: "fail"}))
	assert.Equal(t, ErrorResponse{Error: "kaboom"}, r.Dispatch(ctx, GetAlternatePrice{URL: "boom"}))
	assert.Equal(t, Ack{}, r.Dispatch(ctx, ScanListingPage{}))
	assert.Equal(t, ErrorResponse{Error: "unknown action: npcProducts"}, r.Dispatch(ctx, ProductsEvent{}))
	assert.True(t, r.Has(ActionScanListingPage))
	assert.False(t, r.Has(ActionProducts))
}

func TestLocalBus(t *testing.T) {
	r := NewRouter()
	Handle(r, func(_ context.Context, msg GetAlternatePrice) (any, error) {
		p := 129.9
		return models.AlternatePriceResponse{Price: &p}, nil
	})
	bus := NewLocalBus(r)

	var reply models.AlternatePriceResponse
	require.NoError(t, bus.Send(context.Background(), GetAlternatePrice{URL: "x"}, &reply))
	require.NotNil(t, reply.Price)
	assert.Equal(t, 129.9, *reply.Price)

	var got []ProductsEvent
	unsubscribe := bus.Subscribe(ActionProducts, func(m Message) {
		got = append(got, m.(ProductsEvent))
	})
	bus.Publish(context.Background(), ProductsEvent{Products: []models.Product{{Link: "a", Price: "b"}}})
	unsubscribe()
	bus.Publish(context.Background(), ProductsEvent{})

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Products[0].Link)
}

func TestHTTPBus(t *testing.T) {
	r := NewRouter()
	Handle(r, func(_ context.Context, msg GetAlternatePrice) (any, error) {
		return models.AlternatePriceResponse{Error: "HTTP error! status: 500", Status: 500}, nil
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, MessagesPath, req.URL.Path)
		body, _ := io.ReadAll(req.Body)
		msg, err := Decode(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
			return
		}
		json.NewEncoder(w).Encode(r.Dispatch(req.Context(), msg))
	}))
	defer srv.Close()

	bus := NewHTTPBus(srv.URL+"/", 5*time.Second)
	var reply models.AlternatePriceResponse
	require.NoError(t, bus.Send(context.Background(), GetAlternatePrice{URL: "x"}, &reply))
	assert.Equal(t, models.AlternatePriceResponse{Error: "HTTP error! status: 500", Status: 500}, reply)

	var ack ErrorResponse
	require.NoError(t, bus.Send(context.Background(), ProductsEvent{}, &ack))
	assert.Equal(t, "unknown action: npcProducts", ack.Error)
}
