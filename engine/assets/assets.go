package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/rivet/engine/assets/loaders"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

type assetEntry struct {
	ID metadata.TextureID
	// One path per array layer. A plain texture has a single path.
	Paths  []string
	Locked bool
}

/**
 * @brief AssetManager owns the path-to-identity table for on-disk textures
 * and is the sole producer of pixel bytes for the upload pipeline. It watches
 * the asset directory and reports rewritten files through the invalidation
 * handler so stale GPU copies get refreshed.
 */
type AssetManager struct {
	entries map[metadata.TextureID]*assetEntry
	byPath  map[string]metadata.TextureID
	nextID  int32

	loader Loader

	mutex sync.Mutex

	invalidate func(metadata.TextureID)

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		entries:  make(map[metadata.TextureID]*assetEntry),
		byPath:   make(map[string]metadata.TextureID),
		loader:   &loaders.ImageLoader{FlipY: true},
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	if watch {
		go am.start()
		if err := am.watchRecursive(assetsDir, false); err != nil {
			return err
		}
	}
	return nil
}

// SetInvalidationHandler installs the callback fired when a registered file
// is rewritten on disk. Called from the watcher goroutine; the handler must
// be safe to call concurrently.
func (am *AssetManager) SetInvalidationHandler(handler func(metadata.TextureID)) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.invalidate = handler
}

// RegisterTexture assigns a stable identity to the file at path. Registering
// the same path again returns the existing handle.
func (am *AssetManager) RegisterTexture(path string) int32 {
	handle, _ := am.register([]string{filepath.Clean(path)})
	return handle
}

// RegisterTextureArray assigns one identity to a set of files loaded as the
// layers of an array texture, in argument order.
func (am *AssetManager) RegisterTextureArray(paths ...string) (int32, error) {
	if len(paths) == 0 {
		return 0, fmt.Errorf("texture array needs at least one layer")
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cleaned = append(cleaned, filepath.Clean(p))
	}
	handle, _ := am.register(cleaned)
	return handle, nil
}

func (am *AssetManager) register(paths []string) (int32, metadata.TextureID) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if id, exists := am.byPath[paths[0]]; exists {
		return int32(id), id
	}

	id := metadata.TextureID(am.nextID)
	am.nextID++
	am.entries[id] = &assetEntry{
		ID:    id,
		Paths: paths,
	}
	for _, p := range paths {
		am.byPath[p] = id
	}
	return int32(id), id
}

// PathFor returns the primary path behind an identity, for diagnostics.
func (am *AssetManager) PathFor(id metadata.TextureID) (string, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	entry, exists := am.entries[id]
	if !exists {
		return "", false
	}
	return entry.Paths[0], true
}

func (am *AssetManager) ResolveIdentity(externalHandle int32) (metadata.TextureID, bool) {
	id, ok := metadata.TextureIDFromHandle(externalHandle)
	if !ok {
		return 0, false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, exists := am.entries[id]; !exists {
		return 0, false
	}
	return id, true
}

/**
 * Decodes every layer behind the identity and hands the pixels out pinned:
 * the entry stays busy until Unlock. Layers that decode to differing extents
 * cannot form one array texture and are rejected permanently.
 */
func (am *AssetManager) Lock(id metadata.TextureID) (*metadata.PixelBlob, error) {
	am.mutex.Lock()
	entry, exists := am.entries[id]
	if !exists {
		am.mutex.Unlock()
		return nil, fmt.Errorf("unknown texture identity %d: %w", id, core.ErrUnknown)
	}
	if entry.Locked {
		am.mutex.Unlock()
		return nil, fmt.Errorf("texture %d already locked: %w", id, core.ErrPixelsBusy)
	}
	entry.Locked = true
	paths := entry.Paths
	am.mutex.Unlock()

	blob, err := am.loadLayers(paths)
	if err != nil {
		am.Unlock(id)
		return nil, err
	}
	return blob, nil
}

func (am *AssetManager) Unlock(id metadata.TextureID) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if entry, exists := am.entries[id]; exists {
		entry.Locked = false
	}
}

func (am *AssetManager) loadLayers(paths []string) (*metadata.PixelBlob, error) {
	first, err := am.loader.Load(paths[0])
	if err != nil {
		return nil, err
	}
	for _, path := range paths[1:] {
		layer, err := am.loader.Load(path)
		if err != nil {
			return nil, err
		}
		if layer.Width != first.Width || layer.Height != first.Height {
			return nil, fmt.Errorf("layer %s is %dx%d, expected %dx%d: %w",
				path, layer.Width, layer.Height, first.Width, first.Height, core.ErrMismatchedLayers)
		}
		first.Layers = append(first.Layers, layer.Layers[0])
	}
	return first, nil
}

func (am *AssetManager) start() {
	for {
		select {
		case e := <-am.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.fsnotify.Remove(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if unWatch {
			return am.fsnotify.Remove(walkPath)
		}
		return am.fsnotify.Add(walkPath)
	})
}

// handleFileEvent reports a rewritten registered file to the invalidation
// handler.
func (am *AssetManager) handleFileEvent(path string) {
	am.mutex.Lock()
	id, registered := am.byPath[filepath.Clean(path)]
	handler := am.invalidate
	am.mutex.Unlock()

	if !registered || handler == nil {
		return
	}
	core.LogDebug("asset rewritten on disk: %s", path)
	handler(id)
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return
	}
	am.isClosed = true
	close(am.done)
}
