package actions

import (
	"context"

	"mastrogpt/internal/listing"
)

func users(l listing.Lister) Func {
	return func(ctx context.Context, _ Args) (Result, error) {
		if l == nil {
			return Result{}, Unavailable("listing is not configured")
		}
		data, err := l.Users(ctx)
		if err != nil {
			return Result{}, err
		}
		return JSON(map[string]any{"success": true, "message": "OK", "data": data}), nil
	}
}
