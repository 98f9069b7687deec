package cache

import (
	"context"
	"time"
)

const (
	BoardsKey = "boards:all"
	// BoardsGroup labels board list lookups in metrics.
	BoardsGroup = "boards"

	StationsKey   = "stations:all"
	StationsGroup = "stations"
)

const (
	BoardsTTL   = 10 * time.Minute
	StationsTTL = 6 * time.Hour
)

// InvalidateBoards drops the cached board list after first_article or image changes.
func InvalidateBoards(ctx context.Context) {
	Invalidate(ctx, BoardsKey)
}
