package ingest

import (
	"context"

	"github.com/wedosoft/project-a/internal/types"
)

// SyncSummaries re-embeds every stored summary into the vector store. Used
// to repair the vector collection after a reset or failed summary stage.
func (e *Engine) SyncSummaries(ctx context.Context, tenantID, platformName string) (int, error) {
	synced := 0
	for _, objType := range []types.ObjectType{types.ObjectTypeTicket, types.ObjectTypeArticle} {
		for offset := 0; ; offset += PageSize {
			objs, err := e.store.GetByType(ctx, tenantID, platformName, objType, PageSize, offset)
			if err != nil {
				return synced, err
			}
			for _, obj := range objs {
				text := obj.Summary
				if text == "" {
					if objType != types.ObjectTypeArticle {
						continue
					}
					text = obj.IntegratedContent
				}
				if err := e.indexObject(ctx, obj, text); err != nil {
					return synced, err
				}
				synced++
			}
			if len(objs) < PageSize {
				break
			}
		}
	}
	return synced, nil
}
