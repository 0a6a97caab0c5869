package engine

import (
	"context"
	"log/slog"
)

func LogQueryMetadata(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, md *QueryMetadata) {
	if md == nil || !logger.Enabled(ctx, level) {
		return
	}

	logger.Log(
		ctx,
		level,
		msg,
		"rows", md.Rows,
		"bytes", md.Bytes,
		"total_rows", md.TotalRows,
		"wrote_rows", md.WroteRows,
		"wrote_bytes", md.WroteBytes,
		"elapsed", md.Elapsed,
		"logs", len(md.Logs),
	)
}
