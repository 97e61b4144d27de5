package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/InfernusReal/beddingstore/internal/domain"
)

const maxBodySize = 16 * 1024

var errBodyTooLarge = errors.New("request body too large")

func decodeJSONBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > maxBodySize {
		return errBodyTooLarge
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(body, dst)
}

type cartLinePayload struct {
	RowID       string `json:"row_id,omitempty"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSlug string `json:"product_slug"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	ImageURL    string `json:"image_url,omitempty"`
	Subtotal    int64  `json:"subtotal"`
}

type cartPayload struct {
	Lines []cartLinePayload `json:"lines"`
	Total int64             `json:"total"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{Lines: make([]cartLinePayload, 0, len(cart.Lines)), Total: cart.Total}
	for _, line := range cart.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{
			RowID:       line.RowID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ProductSlug: line.ProductSlug,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			ImageURL:    line.ImageURL,
			Subtotal:    line.Subtotal,
		})
	}
	return payload
}
