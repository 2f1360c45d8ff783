package routing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/handoffdesk-backend/internal/policy"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

const defaultQueueCacheName = "routing:default_queue"

// Match explains which rule picked the queue.
type Match string

const (
	MatchSkills  Match = "skills"
	MatchDefault Match = "default"
	MatchAny     Match = "any"
)

type queueStore interface {
	ActiveQueues(ctx context.Context) ([]models.Queue, error)
	GetQueue(ctx context.Context, id uuid.UUID) (*models.Queue, error)
	DefaultQueue(ctx context.Context) (*models.Queue, error)
}

// Cache is the subset of the redis client used to remember the default queue.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(name string) string
}

// Resolution is the queue chosen for a handoff.
type Resolution struct {
	Queue models.Queue
	Match Match
}

// Resolver picks the target queue for an escalated conversation.
type Resolver struct {
	store queueStore
	cache Cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewResolver builds a resolver. cache may be nil, in which case every default
// lookup reads the database.
func NewResolver(store queueStore, cache Cache, ttl time.Duration, logg *logger.Logger) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("queue store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, logg: logg}, nil
}

// Resolve returns the tightest skill cover for the decision's required skills,
// else the default queue, else the oldest active queue. No active queue at all
// is CodeUnroutable.
func (r *Resolver) Resolve(ctx context.Context, decision policy.Decision) (*Resolution, error) {
	queues, err := r.store.ActiveQueues(ctx)
	if err != nil {
		return nil, err
	}
	if len(queues) == 0 {
		return nil, unroutable(decision)
	}

	if required := dbtypes.StringList(decision.RequiredSkills).Normalized(); len(required) > 0 {
		if q := tightestCover(queues, required); q != nil {
			return &Resolution{Queue: *q, Match: MatchSkills}, nil
		}
	}

	def, err := r.defaultQueue(ctx)
	if err != nil {
		return nil, err
	}
	if def != nil {
		return &Resolution{Queue: *def, Match: MatchDefault}, nil
	}
	return &Resolution{Queue: queues[0], Match: MatchAny}, nil
}

// InvalidateDefaultQueue drops the cached default queue id.
func (r *Resolver) InvalidateDefaultQueue(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, r.cache.CacheKey(defaultQueueCacheName))
}

func (r *Resolver) defaultQueue(ctx context.Context) (*models.Queue, error) {
	if q := r.cachedDefault(ctx); q != nil {
		return q, nil
	}
	q, err := r.store.DefaultQueue(ctx)
	if err != nil || q == nil {
		return q, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, r.cache.CacheKey(defaultQueueCacheName), q.ID.String(), r.ttl); err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "default queue cache write failed")
		}
	}
	return q, nil
}

// cachedDefault returns the cached default queue when it is still active and
// default. Cache failures degrade to a database read.
func (r *Resolver) cachedDefault(ctx context.Context) *models.Queue {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, r.cache.CacheKey(defaultQueueCacheName))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "default queue cache read failed")
		}
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	q, err := r.store.GetQueue(ctx, id)
	if err != nil || !q.Active || !q.IsDefault {
		return nil
	}
	return q
}

// tightestCover picks the queue covering every required skill with the fewest
// extra skills; name breaks ties.
func tightestCover(queues []models.Queue, required []string) *models.Queue {
	var candidates []models.Queue
	for _, q := range queues {
		if covers(q.Skills.Normalized(), required) {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ei := len(candidates[i].Skills.Normalized()) - len(required)
		ej := len(candidates[j].Skills.Normalized()) - len(required)
		if ei != ej {
			return ei < ej
		}
		return candidates[i].Name < candidates[j].Name
	})
	return &candidates[0]
}

func covers(skills dbtypes.StringList, required []string) bool {
	have := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		have[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

func unroutable(decision policy.Decision) error {
	return pkgerrors.New(pkgerrors.CodeUnroutable, "no active queue can take the handoff").
		WithDetails(map[string]any{
			"reason_code":     decision.Reason,
			"required_skills": decision.RequiredSkills,
		})
}
