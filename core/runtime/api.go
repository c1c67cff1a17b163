package runtime

import (
	"context"

	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

// pageSize is the page size the document API reads with.
const pageSize = 100

// API returns the document access hooks use through schema.Request.API.
func (r *Runtime) API() schema.API {
	return documentAPI{r: r}
}

type documentAPI struct {
	r *Runtime
}

func (a documentAPI) FindByID(ctx context.Context, collection, id string, req *schema.Request) (map[string]any, error) {
	return a.r.FindByID(ctx, collection, id, req)
}

// Find returns every matching document, reading page by page.
func (a documentAPI) Find(ctx context.Context, collection string, where map[string]any, req *schema.Request) ([]map[string]any, error) {
	var docs []map[string]any
	for page := 1; ; page++ {
		res, err := a.r.Find(ctx, collection, storage.Query{Where: where, Limit: pageSize, Page: page}, req)
		if err != nil {
			return nil, err
		}
		docs = append(docs, res.Docs...)
		if page >= res.TotalPages {
			return docs, nil
		}
	}
}

func (a documentAPI) Update(ctx context.Context, collection, id string, data map[string]any, req *schema.Request) (map[string]any, error) {
	return a.r.Update(ctx, collection, id, data, req)
}
