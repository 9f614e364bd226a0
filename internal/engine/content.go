package engine

import (
	"context"
	"strings"

	"live-service/internal/livepost"
	"live-service/internal/media"
	"live-service/internal/metrics"
)

// parseContent builds the block list of a post: one block per non-empty line
// of text, then one image block per usable file.
func (e *Engine) parseContent(ctx context.Context, text string, files []media.File) []livepost.Block {
	var blocks []livepost.Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if e.embeds.IsEmbed(line) {
			blocks = append(blocks, livepost.EmbedBlock(line))
		} else {
			blocks = append(blocks, livepost.TextBlock(line))
		}
	}
	for _, f := range files {
		img, err := e.images.Process(ctx, f)
		if err != nil {
			e.log.Warn("image skipped", "name", f.Name, "mimetype", f.MimeType, "error", err)
			metrics.ImagesSkipped.Inc()
			continue
		}
		blocks = append(blocks, livepost.ImageBlock(img))
	}
	for i := range blocks {
		blocks[i].ID = e.newID()
	}
	return blocks
}
