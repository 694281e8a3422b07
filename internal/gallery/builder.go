package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/imaging"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/storage"
)

const defaultBuildWorkers = 4

// FileSource lists and reads gallery reference images.
type FileSource interface {
	List() ([]storage.GalleryFile, error)
	Read(name string) ([]byte, error)
}

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	Files    FileSource
	Embedder provider.Embedder
	// Detector, when set, locates the face in each reference so the stored
	// embedding covers the same region as a probe crop.
	Detector provider.Detector
	Model    domain.DetectorModel
	// Cache is optional.
	Cache repository.EmbeddingRepositoryInterface
	// CacheModel namespaces cache rows; defaults to the embedder name.
	CacheModel string
	Workers    int
	Audit      audit.Logger
	Logger     *slog.Logger
}

// RebuildStats summarizes one rebuild.
type RebuildStats struct {
	Indexed   int
	CacheHits int
	Skipped   int
	Pruned    int64
	Duration  time.Duration
}

// Builder embeds the gallery directory into an Index.
type Builder struct {
	cfg   BuilderConfig
	index *Index

	// serializes rebuilds; searches never wait on it
	mu sync.Mutex
}

func NewBuilder(index *Index, cfg BuilderConfig) *Builder {
	if cfg.Workers < 1 {
		cfg.Workers = defaultBuildWorkers
	}
	if cfg.CacheModel == "" && cfg.Embedder != nil {
		cfg.CacheModel = cfg.Embedder.Name()
	}
	if !cfg.Model.Valid() {
		cfg.Model = domain.DefaultDetectorModel
	}
	if cfg.Audit == nil {
		cfg.Audit = &audit.NoOpLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "gallery")

	return &Builder{cfg: cfg, index: index}
}

// Index returns the index this builder publishes to.
func (b *Builder) Index() *Index {
	return b.index
}

// Rebuild re-embeds the gallery and swaps the result into the index.
// Unreadable or undecodable references are skipped with a warning.
func (b *Builder) Rebuild(ctx context.Context) (RebuildStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	var stats RebuildStats

	files, err := b.cfg.Files.List()
	if err != nil {
		return stats, fmt.Errorf("list gallery: %w", err)
	}

	type result struct {
		entry    Entry
		ok       bool
		cacheHit bool
	}
	results := make([]result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			emb, hit, err := b.embedFile(gctx, f.Name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.cfg.Logger.Warn("skipping gallery reference",
					"file", f.Name,
					"error", err,
				)
				return nil
			}

			results[i] = result{entry: Entry{Filename: f.Name, Embedding: emb}, ok: true, cacheHit: hit}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("rebuild gallery: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	names := make([]string, 0, len(files))
	for i, r := range results {
		names = append(names, files[i].Name)
		if !r.ok {
			stats.Skipped++
			continue
		}
		if r.cacheHit {
			stats.CacheHits++
		}
		entries = append(entries, r.entry)
	}

	skipped := b.index.Replace(entries)
	for _, name := range skipped {
		b.cfg.Logger.Warn("skipping gallery reference with mismatched embedding size", "file", name)
	}
	stats.Skipped += len(skipped)
	stats.Indexed = len(entries) - len(skipped)

	if b.cfg.Cache != nil {
		pruned, err := b.cfg.Cache.DeleteExcept(ctx, names)
		if err != nil {
			b.cfg.Logger.Warn("failed to prune embedding cache", "error", err)
		}
		stats.Pruned = pruned
	}

	stats.Duration = time.Since(start)

	b.cfg.Logger.Info("gallery rebuilt",
		"indexed", stats.Indexed,
		"cache_hits", stats.CacheHits,
		"skipped", stats.Skipped,
		"duration_ms", stats.Duration.Milliseconds(),
	)

	if err := b.cfg.Audit.Log(ctx, audit.Event{
		EventType: audit.EventGalleryRebuilt,
		Provider:  b.cfg.Embedder.Name(),
		Success:   true,
		Metadata: map[string]string{
			"indexed":    strconv.Itoa(stats.Indexed),
			"cache_hits": strconv.Itoa(stats.CacheHits),
			"skipped":    strconv.Itoa(stats.Skipped),
		},
	}); err != nil {
		b.cfg.Logger.Warn("failed to log audit event", "error", err)
	}

	return stats, nil
}

func (b *Builder) embedFile(ctx context.Context, name string) ([]float32, bool, error) {
	data, err := b.cfg.Files.Read(name)
	if err != nil {
		return nil, false, fmt.Errorf("read reference: %w", err)
	}

	sum := sha256.Sum256(data)
	key := repository.EmbeddingKey{
		Filename: name,
		Digest:   hex.EncodeToString(sum[:]),
		Model:    b.cfg.CacheModel,
	}

	if b.cfg.Cache != nil {
		cached, err := b.cfg.Cache.Get(ctx, key)
		if err != nil {
			b.cfg.Logger.Warn("embedding cache read failed", "file", name, "error", err)
		} else if len(cached) > 0 {
			return cached, true, nil
		}
	}

	face, err := b.referenceFace(ctx, data)
	if err != nil {
		return nil, false, err
	}

	emb, err := b.cfg.Embedder.Embed(ctx, face)
	if err != nil {
		return nil, false, fmt.Errorf("embed reference: %w", err)
	}

	if b.cfg.Cache != nil {
		if err := b.cfg.Cache.Upsert(ctx, key, emb); err != nil {
			b.cfg.Logger.Warn("embedding cache write failed", "file", name, "error", err)
		}
	}

	return emb, false, nil
}

// referenceFace returns the JPEG of the largest detected face, or the whole
// image when no detector is configured or no face is found.
func (b *Builder) referenceFace(ctx context.Context, data []byte) ([]byte, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Release()

	if b.cfg.Detector == nil {
		return img.JPEG()
	}

	boxes, err := b.cfg.Detector.Detect(ctx, img, b.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("detect reference face: %w", err)
	}

	var best domain.DetectionBox
	bestArea := 0
	for _, box := range boxes {
		box = box.Clamp(img.Width, img.Height)
		if area := (box.X2 - box.X1) * (box.Y2 - box.Y1); area > bestArea {
			best, bestArea = box, area
		}
	}

	if bestArea == 0 {
		return img.JPEG()
	}
	return img.Crop(best)
}
