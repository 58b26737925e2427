package picture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/softcache"
)

var (
	// ErrUnavailable reports a durable raster that has no stored copy.
	ErrUnavailable = errors.New("raster unavailable")
	// ErrNoGlyphs reports a NoStaff request made before staff lines are known.
	ErrNoGlyphs = errors.New("no staff glyphs")
)

// Backing reads the durable copies of a page that are not held in memory.
type Backing interface {
	// Initial returns the gray image of the page, from the book archive or
	// else from the original input file.
	Initial() (*raster.Gray, error)
	// BinaryTable returns the stored binary run table, or ErrUnavailable.
	BinaryTable() (*raster.RunTable, error)
}

// Options tunes the variant filters and the cache.
type Options struct {
	Filter           raster.BinarizationFilter
	GaussianRadius   int
	MedianRadius     int
	MaxCachedSources int
	RetainedSources  int
	KeepBase         bool
	Logger           *slog.Logger
}

// OptionsFromConfig maps the picture configuration section.
func OptionsFromConfig(cfg config.Picture) Options {
	var filter raster.BinarizationFilter
	switch cfg.Binarization {
	case config.BinarizationGlobal:
		filter = raster.GlobalFilter{Threshold: cfg.GlobalThreshold}
	default:
		filter = raster.AdaptiveFilter{
			Window:    cfg.AdaptiveWindow,
			MeanCoeff: cfg.AdaptiveMeanCoeff,
			StdCoeff:  cfg.AdaptiveStdCoeff,
		}
	}
	return Options{
		Filter:           filter,
		GaussianRadius:   cfg.GaussianRadius,
		MedianRadius:     cfg.MedianRadius,
		MaxCachedSources: cfg.MaxCachedSources,
		RetainedSources:  cfg.RetainedSources,
		KeepBase:         cfg.KeepBaseRaster,
	}
}

// Picture caches the raster variants of one page.
//
// Variants live in a soft cache and may vanish at any time; Source rebuilds a
// missing one from its dependency. Base and Binary also have durable copies:
// the initial image is held in memory until it has been stored, and the
// binary run table is kept for the life of the picture.
//
// Concurrent Source calls for the same key may both recompute it. The results
// are identical, so the duplicate work is harmless.
type Picture struct {
	width   int
	height  int
	opts    Options
	backing Backing
	logger  *slog.Logger

	mu         sync.Mutex
	initial    *raster.Gray
	table      *raster.RunTable
	staff      []raster.Glyph
	baseDirty  bool
	tableDirty bool

	sources *softcache.Cache[Key, *raster.Gray]
}

// New builds a picture from a freshly loaded page image.
func New(initial *raster.Gray, backing Backing, opts Options) (*Picture, error) {
	if initial == nil {
		return nil, fmt.Errorf("picture: nil initial image")
	}
	p, err := newPicture(initial.Width, initial.Height, backing, opts)
	if err != nil {
		return nil, err
	}
	p.initial = initial
	p.baseDirty = true
	return p, nil
}

// Restore builds a picture for a page whose rasters are stored in the book.
func Restore(width, height int, backing Backing, opts Options) (*Picture, error) {
	return newPicture(width, height, backing, opts)
}

func newPicture(width, height int, backing Backing, opts Options) (*Picture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("picture: invalid size %dx%d", width, height)
	}
	if opts.Filter == nil {
		opts.Filter = raster.AdaptiveFilter{Window: 9, MeanCoeff: 0.7, StdCoeff: 0.9}
	}
	capacity := opts.MaxCachedSources
	if capacity <= 0 {
		capacity = int(keyCount)
	}
	p := &Picture{
		width:   width,
		height:  height,
		opts:    opts,
		backing: backing,
		logger:  logging.NewComponentLogger(opts.Logger, "picture"),
	}
	cache, err := softcache.New[Key, *raster.Gray](capacity, func(key Key, _ *raster.Gray) {
		p.logger.Debug("raster evicted", logging.String("source", key.String()))
	})
	if err != nil {
		return nil, err
	}
	p.sources = cache
	return p, nil
}

// Width returns the page width in pixels.
func (p *Picture) Width() int { return p.width }

// Height returns the page height in pixels.
func (p *Picture) Height() int { return p.height }

// Source returns the variant for key, computing it and any missing
// dependency first. The returned raster is shared and must not be modified.
func (p *Picture) Source(key Key) (*raster.Gray, error) {
	if key >= keyCount {
		return nil, fmt.Errorf("picture: unknown source %d", key)
	}
	if g, ok := p.sources.Get(key); ok {
		return g, nil
	}
	g, err := p.build(key)
	if err != nil {
		return nil, err
	}
	p.sources.Put(key, g)
	return g, nil
}

// Cached reports whether key is currently held by the cache.
func (p *Picture) Cached(key Key) bool {
	return p.sources.Contains(key)
}

func (p *Picture) build(key Key) (*raster.Gray, error) {
	switch key {
	case Base:
		return p.loadInitial()
	case Binary:
		return p.buildBinary()
	case Gaussian:
		bin, err := p.Source(Binary)
		if err != nil {
			return nil, err
		}
		return raster.Gaussian(bin, p.opts.GaussianRadius), nil
	case Median:
		bin, err := p.Source(Binary)
		if err != nil {
			return nil, err
		}
		return raster.Median(bin, p.opts.MedianRadius), nil
	case NoStaff:
		p.mu.Lock()
		glyphs := p.staff
		p.mu.Unlock()
		if len(glyphs) == 0 {
			logging.WarnWithContext(p.logger, "no staff lines to erase", "picture_no_staff",
				logging.String("source", NoStaff.String()),
				logging.String(logging.FieldErrorHint, "run the GRID step before requesting NO_STAFF"),
				logging.String(logging.FieldImpact, "staff-free image not produced"),
			)
			return nil, ErrNoGlyphs
		}
		med, err := p.Source(Median)
		if err != nil {
			return nil, err
		}
		return raster.EraseGlyphs(med, glyphs), nil
	}
	return nil, fmt.Errorf("picture: unknown source %s", key)
}

func (p *Picture) loadInitial() (*raster.Gray, error) {
	p.mu.Lock()
	initial := p.initial
	p.mu.Unlock()
	if initial != nil {
		return initial, nil
	}
	if p.backing == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, Base)
	}
	g, err := p.backing.Initial()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", Base, err)
	}
	if g.Width != p.width || g.Height != p.height {
		return nil, fmt.Errorf("load %s: size %dx%d, want %dx%d", Base, g.Width, g.Height, p.width, p.height)
	}
	return g, nil
}

func (p *Picture) buildBinary() (*raster.Gray, error) {
	table, err := p.binaryTable()
	if err == nil {
		return table.Gray(), nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	if err := p.Binarize(); err != nil {
		return nil, err
	}
	table, err = p.binaryTable()
	if err != nil {
		return nil, err
	}
	return table.Gray(), nil
}

func (p *Picture) binaryTable() (*raster.RunTable, error) {
	p.mu.Lock()
	table := p.table
	p.mu.Unlock()
	if table != nil {
		return table, nil
	}
	if p.backing == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, Binary)
	}
	table, err := p.backing.BinaryTable()
	if err != nil {
		return nil, err
	}
	if table.Width != p.width || table.Height != p.height {
		return nil, fmt.Errorf("load %s: size %dx%d, want %dx%d", Binary, table.Width, table.Height, p.width, p.height)
	}
	p.mu.Lock()
	if p.table == nil {
		p.table = table
	}
	table = p.table
	p.mu.Unlock()
	return table, nil
}

// HasBinary reports whether a binary image exists in memory or in storage.
func (p *Picture) HasBinary() bool {
	_, err := p.binaryTable()
	return err == nil
}

// Binarize applies the binarization filter to the initial image and makes
// the result the durable binary image. Variants derived from the previous
// binary image are dropped.
func (p *Picture) Binarize() error {
	base, err := p.Source(Base)
	if err != nil {
		return err
	}
	bin := p.opts.Filter.Binarize(base)
	table := raster.RunTableFromGray(bin)

	p.mu.Lock()
	p.table = table
	p.tableDirty = true
	p.mu.Unlock()

	p.invalidateFrom(Binary)
	p.sources.Put(Binary, bin)
	p.logger.Debug("binarized",
		logging.String("filter", p.opts.Filter.String()),
		logging.Int("foreground", table.Foreground()),
	)
	return nil
}

// SetStaffGlyphs records the staff-line footprints used to build NoStaff.
func (p *Picture) SetStaffGlyphs(glyphs []raster.Glyph) {
	p.mu.Lock()
	p.staff = append([]raster.Glyph(nil), glyphs...)
	p.mu.Unlock()
	p.sources.Evict(NoStaff)
}

// StaffGlyphs returns the recorded staff-line footprints.
func (p *Picture) StaffGlyphs() []raster.Glyph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]raster.Glyph(nil), p.staff...)
}

// Evict drops key from the cache. Durable copies are kept.
func (p *Picture) Evict(key Key) bool {
	return p.sources.Evict(key)
}

// Shrink reduces the cache to at most keep variants.
func (p *Picture) Shrink(keep int) int {
	return p.sources.Shrink(keep)
}

// Relax shrinks the cache to the retained variant count and returns how
// many variants were dropped. Durable copies are kept.
func (p *Picture) Relax() int {
	dropped := p.sources.Shrink(p.opts.RetainedSources)
	if dropped > 0 {
		p.logger.Debug("raster cache relaxed",
			logging.Int("dropped", dropped),
			logging.Int("retained", p.sources.Len()),
		)
	}
	return dropped
}

// Dispose drops every cached variant.
func (p *Picture) Dispose() {
	p.sources.Purge()
}

// ResetToGray discards the binary image and everything derived from it.
func (p *Picture) ResetToGray() {
	p.mu.Lock()
	p.table = nil
	p.tableDirty = false
	p.staff = nil
	p.mu.Unlock()
	p.invalidateFrom(Binary)
}

// invalidateFrom evicts key and every variant that transitively depends on it.
func (p *Picture) invalidateFrom(key Key) {
	p.sources.Evict(key)
	for _, dep := range key.dependents() {
		p.invalidateFrom(dep)
	}
}

// Stats reports cache hits and misses.
func (p *Picture) Stats() (hits, misses uint64) {
	return p.sources.Stats()
}

// FilterName describes the binarization filter.
func (p *Picture) FilterName() string {
	return p.opts.Filter.String()
}
