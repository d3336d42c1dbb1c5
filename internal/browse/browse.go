package browse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gwlsn/mediagrade/internal/ffmpeg"
	"github.com/gwlsn/mediagrade/internal/media"
)

// ErrOutsideRoot is returned for paths that escape the media root.
var ErrOutsideRoot = errors.New("path is outside the media root")

// maxConcurrentInfo limits header reads and probes during a browse.
const maxConcurrentInfo = 16

// ProgressCallback is called during file discovery to report progress
type ProgressCallback func(found, total int)

// VideoProber reads video container metadata. Implemented by ffmpeg.Prober.
type VideoProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// MediaInfo is the header-level metadata shown for a media file.
type MediaInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution string  `json:"resolution"`
	Format     string  `json:"format,omitempty"`
	BitDepth   int     `json:"bit_depth,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	HasAudio   bool    `json:"has_audio,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	IsHDR      bool    `json:"is_hdr,omitempty"`
}

// Entry represents a file or directory in the browser
type Entry struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	IsDir      bool       `json:"is_dir"`
	Size       int64      `json:"size"`
	ModTime    time.Time  `json:"mod_time"`
	MediaType  media.Type `json:"media_type,omitempty"`
	Info       *MediaInfo `json:"info,omitempty"`
	ImageCount int        `json:"image_count,omitempty"` // For directories: direct image files
	VideoCount int        `json:"video_count,omitempty"` // For directories: direct video files
	TotalSize  int64      `json:"total_size,omitempty"`  // For directories: size of those files
}

// BrowseResult contains the result of browsing a directory
type BrowseResult struct {
	Path       string   `json:"path"`
	Parent     string   `json:"parent,omitempty"`
	Entries    []*Entry `json:"entries"`
	ImageCount int      `json:"image_count"`
	VideoCount int      `json:"video_count"`
	TotalSize  int64    `json:"total_size"` // Size of media files in this directory
}

// MediaFile is a discovered file ready to be queued for analysis.
type MediaFile struct {
	Path      string     `json:"path"`
	MediaType media.Type `json:"media_type"`
	Size      int64      `json:"size"`
}

// Browser handles file system browsing with media metadata
type Browser struct {
	prober    VideoProber
	mediaRoot string

	// Cache for header metadata (path -> info)
	cacheMu sync.RWMutex
	cache   map[string]*MediaInfo
}

// NewBrowser creates a new Browser with the given prober and media root
func NewBrowser(prober VideoProber, mediaRoot string) *Browser {
	absRoot, err := filepath.Abs(mediaRoot)
	if err != nil {
		absRoot = mediaRoot
	}
	return &Browser{
		prober:    prober,
		mediaRoot: absRoot,
		cache:     make(map[string]*MediaInfo),
	}
}

// MediaRoot returns the absolute media root.
func (b *Browser) MediaRoot() string {
	return b.mediaRoot
}

// Resolve returns the absolute form of path, or ErrOutsideRoot.
func (b *Browser) Resolve(path string) (string, error) {
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		cleanPath = filepath.Clean(path)
	}
	if cleanPath != b.mediaRoot && !strings.HasPrefix(cleanPath, b.mediaRoot+string(os.PathSeparator)) {
		return "", ErrOutsideRoot
	}
	return cleanPath, nil
}

// Browse returns the contents of a directory. Paths outside the media
// root browse the root instead.
func (b *Browser) Browse(ctx context.Context, path string) (*BrowseResult, error) {
	cleanPath, err := b.Resolve(path)
	if err != nil {
		cleanPath = b.mediaRoot
	}

	dirEntries, err := os.ReadDir(cleanPath)
	if err != nil {
		return nil, err
	}

	result := &BrowseResult{
		Path:    cleanPath,
		Entries: make([]*Entry, 0, len(dirEntries)),
	}
	if cleanPath != b.mediaRoot {
		result.Parent = filepath.Dir(cleanPath)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentInfo)

	for _, e := range dirEntries {
		// Skip hidden files
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		entry := &Entry{
			Name:    e.Name(),
			Path:    filepath.Join(cleanPath, e.Name()),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		if e.IsDir() {
			entry.ImageCount, entry.VideoCount, entry.TotalSize = countMedia(entry.Path)
		} else {
			entry.MediaType = media.Classify(e.Name())
			switch entry.MediaType {
			case media.TypeImage:
				result.ImageCount++
			case media.TypeVideo:
				result.VideoCount++
			}
			if entry.MediaType != media.TypeUnknown {
				result.TotalSize += info.Size()
				// Each goroutine writes only its own entry
				g.Go(func() error {
					entry.Info = b.getInfo(gctx, entry.Path, entry.MediaType)
					return nil
				})
			}
		}

		result.Entries = append(result.Entries, entry)
	}

	_ = g.Wait()

	// Directories first, then by name
	sort.Slice(result.Entries, func(i, j int) bool {
		if result.Entries[i].IsDir != result.Entries[j].IsDir {
			return result.Entries[i].IsDir
		}
		return strings.ToLower(result.Entries[i].Name) < strings.ToLower(result.Entries[j].Name)
	})

	return result, nil
}

// countMedia counts media files in a directory (non-recursive for speed)
func countMedia(dirPath string) (images, videos int, totalSize int64) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, 0, 0
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch media.Classify(e.Name()) {
		case media.TypeImage:
			images++
		case media.TypeVideo:
			videos++
		default:
			continue
		}
		if info, err := e.Info(); err == nil {
			totalSize += info.Size()
		}
	}
	return images, videos, totalSize
}

// getInfo returns cached or fresh header metadata, or nil if the file
// cannot be read.
func (b *Browser) getInfo(ctx context.Context, path string, mediaType media.Type) *MediaInfo {
	b.cacheMu.RLock()
	if info, ok := b.cache[path]; ok {
		b.cacheMu.RUnlock()
		return info
	}
	b.cacheMu.RUnlock()

	var info *MediaInfo
	switch mediaType {
	case media.TypeImage:
		hdr, err := media.ImageInfo(path)
		if err != nil {
			return nil
		}
		info = &MediaInfo{
			Width:      hdr.Width,
			Height:     hdr.Height,
			Resolution: media.Resolution(hdr.Width, hdr.Height),
			Format:     hdr.Format,
			BitDepth:   hdr.BitDepth,
		}
	case media.TypeVideo:
		if b.prober == nil {
			return nil
		}
		probe, err := b.prober.Probe(ctx, path)
		if err != nil {
			return nil
		}
		info = &MediaInfo{
			Width:      probe.Width,
			Height:     probe.Height,
			Resolution: media.Resolution(probe.Width, probe.Height),
			Format:     probe.Format,
			BitDepth:   probe.BitDepth,
			Codec:      probe.VideoCodec,
			Bitrate:    probe.Bitrate,
			Duration:   probe.Duration.Seconds(),
			HasAudio:   probe.HasAudio,
			FrameRate:  probe.FrameRate,
			IsHDR:      probe.IsHDR,
		}
	default:
		return nil
	}

	b.cacheMu.Lock()
	b.cache[path] = info
	b.cacheMu.Unlock()

	return info
}

// GetMediaFiles returns all media files in the given paths (files or directories)
// For directories, it recursively finds all media files
func (b *Browser) GetMediaFiles(ctx context.Context, paths []string) ([]*MediaFile, error) {
	return b.GetMediaFilesWithProgress(ctx, paths, nil)
}

// GetMediaFilesWithProgress returns all media files with progress reporting.
// The onProgress callback is called with (found, total) counts as each
// file is stat'ed.
func (b *Browser) GetMediaFilesWithProgress(ctx context.Context, paths []string, onProgress ProgressCallback) ([]*MediaFile, error) {
	// First pass: collect candidate paths (no stat beyond the walk)
	var mediaPaths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			mediaPaths = append(mediaPaths, p)
		}
	}

	for _, path := range paths {
		cleanPath, err := b.Resolve(path)
		if err != nil {
			continue
		}

		info, err := os.Stat(cleanPath)
		if err != nil {
			continue
		}

		if info.IsDir() {
			err := filepath.WalkDir(cleanPath, func(filePath string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // Skip unreadable entries
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if d.IsDir() {
					if filePath != cleanPath && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if !strings.HasPrefix(d.Name(), ".") && media.IsMediaFile(filePath) {
					add(filePath)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if media.IsMediaFile(cleanPath) {
			add(cleanPath)
		}
	}

	total := len(mediaPaths)
	if onProgress != nil {
		onProgress(0, total)
	}

	results := make([]*MediaFile, 0, total)
	var mu sync.Mutex
	var found int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentInfo)
	for _, filePath := range mediaPaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if info, err := os.Stat(filePath); err == nil && info.Mode().IsRegular() {
				mu.Lock()
				results = append(results, &MediaFile{
					Path:      filePath,
					MediaType: media.Classify(filePath),
					Size:      info.Size(),
				})
				mu.Unlock()
			}
			current := atomic.AddInt64(&found, 1)
			if onProgress != nil {
				onProgress(int(current), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sort by path for consistent ordering
	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// ClearCache clears the metadata cache
func (b *Browser) ClearCache() {
	b.cacheMu.Lock()
	b.cache = make(map[string]*MediaInfo)
	b.cacheMu.Unlock()
}

// InvalidateCache removes a specific path from the cache
func (b *Browser) InvalidateCache(path string) {
	b.cacheMu.Lock()
	delete(b.cache, path)
	b.cacheMu.Unlock()
}
