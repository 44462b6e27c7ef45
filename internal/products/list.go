package product

import "github.com/angelmondragon/vertical-shop/pkg/pagination"

// ListProductsInput pages through products. Zero values fall back to offset 0
// and a limit of pagination.DefaultLimit.
type ListProductsInput struct {
	Offset int `json:"offset" validate:"gte=0"`
	Limit  int `json:"limit" validate:"gte=0,max=100"`
}

// ProductListResult is one page of products.
type ProductListResult struct {
	Items  []ProductDTO `json:"items"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

func (in ListProductsInput) params() pagination.Params {
	return pagination.Params{Offset: in.Offset, Limit: in.Limit}.Normalize()
}
