package collect

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"pulse/internal/core"
	"pulse/internal/logger"
)

// Collection vector names. Zeitgeist samples what is popular now, underground
// samples contested threads, vanguard samples the newest posts.
const (
	VectorZeitgeist   = "zeitgeist"
	VectorUnderground = "underground"
	VectorVanguard    = "vanguard"
)

// Searcher is the platform capability the collector consumes. The production
// implementation lives in internal/reddit.
type Searcher interface {
	// Search returns items for one keyword under one sampling vector.
	Search(ctx context.Context, keyword string, vector core.CollectionVector) ([]core.ContentItem, error)
	// Comments returns top comments under a post.
	Comments(ctx context.Context, postID string, limit int) ([]core.ContentItem, error)
}

// Options configures a Collector.
type Options struct {
	CallsPerMinute    int           // Platform per-minute call cap
	Window            time.Duration // Rate-limit window; defaults to one minute
	CommentsPerPost   int           // Comments fetched per selected post; 0 disables
	TopPostsWithComms int           // How many top posts per keyword get comments
	Workers           int           // Bounded pool size for heuristic annotation
}

// Collector fetches posts and comments for keywords across the three sampling
// vectors, under the sliding-window rate limit. Created at run start and
// discarded at run end; its limiter state never outlives the run.
type Collector struct {
	searcher Searcher
	limiter  *RateLimiter
	opts     Options
}

// NewCollector creates a collector with its own rate-limiter state.
func NewCollector(searcher Searcher, opts Options) *Collector {
	if opts.CallsPerMinute <= 0 {
		opts.CallsPerMinute = 59
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Collector{
		searcher: searcher,
		limiter:  NewRateLimiter(opts.CallsPerMinute, opts.Window),
		opts:     opts,
	}
}

// Vectors partitions an item budget roughly evenly across the three sampling
// strategies. A caller-supplied time filter applies to every vector; "all"
// keeps the per-vector defaults.
func Vectors(itemBudget int, timeFilter string) []core.CollectionVector {
	perVector := itemBudget / 3
	if perVector < 1 {
		perVector = 1
	}

	if timeFilter != "" && timeFilter != "all" {
		return []core.CollectionVector{
			{Name: VectorZeitgeist, SortOrder: "hot", TimeWindow: timeFilter, Limit: perVector},
			{Name: VectorUnderground, SortOrder: "controversial", TimeWindow: timeFilter, Limit: perVector},
			{Name: VectorVanguard, SortOrder: "new", TimeWindow: timeFilter, Limit: perVector},
		}
	}
	return []core.CollectionVector{
		{Name: VectorZeitgeist, SortOrder: "hot", TimeWindow: "week", Limit: perVector},
		{Name: VectorUnderground, SortOrder: "controversial", TimeWindow: "month", Limit: perVector},
		{Name: VectorVanguard, SortOrder: "new", TimeWindow: "all", Limit: perVector},
	}
}

// Collect gathers items for every keyword. A failed vector is logged and
// skipped; a keyword whose vectors all fail contributes no items. Collect
// never returns an error: collection degrades, it does not abort.
func (c *Collector) Collect(ctx context.Context, keywords []string, itemsPerKeyword int, timeFilter string) []core.ContentItem {
	var all []core.ContentItem

	logger.Info("collection started", "keywords", len(keywords), "items_per_keyword", itemsPerKeyword, "time_filter", timeFilter)

	for _, keyword := range keywords {
		items := c.collectKeyword(ctx, keyword, itemsPerKeyword, timeFilter)
		all = append(all, items...)
		logger.Info("keyword collected", "keyword", keyword, "items", len(items))
	}

	c.annotateAll(all)

	logger.Info("collection finished", "total", len(all))
	return all
}

// collectKeyword runs the three vectors for one keyword in parallel. Vector
// order is preserved in the result so downstream ordering stays stable.
func (c *Collector) collectKeyword(ctx context.Context, keyword string, itemsPerKeyword int, timeFilter string) []core.ContentItem {
	vectors := Vectors(itemsPerKeyword, timeFilter)
	results := make([][]core.ContentItem, len(vectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, vector := range vectors {
		g.Go(func() error {
			c.limiter.Wait()
			items, err := c.searcher.Search(gctx, keyword, vector)
			if err != nil {
				logger.Warn("vector search failed", "keyword", keyword, "vector", vector.Name, "error", err.Error())
				return nil
			}
			for j := range items {
				items[j].CollectionVector = vector.Name
				items[j].KeywordSource = keyword
				items[j].ClusterID = -1
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait() // vector errors are swallowed above

	var items []core.ContentItem
	for _, r := range results {
		items = append(items, r...)
	}

	if c.opts.CommentsPerPost > 0 && c.opts.TopPostsWithComms > 0 {
		items = append(items, c.collectComments(ctx, keyword, items)...)
	}

	return items
}

// collectComments pulls top comments for the highest-scoring posts of a
// keyword. Comment failures degrade to posts-only.
func (c *Collector) collectComments(ctx context.Context, keyword string, posts []core.ContentItem) []core.ContentItem {
	top := make([]core.ContentItem, 0, len(posts))
	for _, p := range posts {
		if p.Kind == core.KindPost {
			top = append(top, p)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > c.opts.TopPostsWithComms {
		top = top[:c.opts.TopPostsWithComms]
	}

	var comments []core.ContentItem
	for _, post := range top {
		c.limiter.Wait()
		got, err := c.searcher.Comments(ctx, post.ID, c.opts.CommentsPerPost)
		if err != nil {
			logger.Warn("comment fetch failed", "post_id", post.ID, "error", err.Error())
			continue
		}
		for j := range got {
			got[j].CollectionVector = post.CollectionVector
			got[j].KeywordSource = keyword
			got[j].ClusterID = -1
		}
		comments = append(comments, got...)
	}
	return comments
}

// annotateAll runs the CPU-bound heuristic scoring over a bounded worker pool.
func (c *Collector) annotateAll(items []core.ContentItem) {
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Workers)
	for i := range items {
		g.Go(func() error {
			Annotate(&items[i])
			return nil
		})
	}
	_ = g.Wait()
}
